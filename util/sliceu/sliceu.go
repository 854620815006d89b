package sliceu

func Map[T, U any](s []T, f func(T) U) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Partition deals the items of slice round-robin into groupCount groups.
func Partition[T any](slice []T, groupCount int) [][]T {
	if groupCount < 1 {
		panic("Partition groupCount must be at least 1")
	}
	groups := make([][]T, groupCount)
	for i, el := range slice {
		groups[i%groupCount] = append(groups[i%groupCount], el)
	}
	return groups
}
