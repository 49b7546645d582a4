package distributor

// Partition deals sites round-robin into n chunks: site i goes to chunk
// i mod n. Input order is kept within each chunk and exactly n chunks are
// returned, some possibly empty.
func Partition(sites []string, n int) [][]string {
	if n < 1 {
		n = 1
	}

	chunks := make([][]string, n)
	for i := range chunks {
		chunks[i] = make([]string, 0, len(sites)/n+1)
	}
	for i, site := range sites {
		chunks[i%n] = append(chunks[i%n], site)
	}
	return chunks
}
