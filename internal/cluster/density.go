package cluster

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/humilityai/hdbscan"
)

// DensityFunc groups points without a fixed cluster count. It returns the
// member indices of each cluster; points in no cluster are noise.
type DensityFunc func(points [][]float64, minClusterSize int) ([][]int, error)

// HDBSCAN clusters points with hierarchical density-based clustering over
// cosine distance.
func HDBSCAN(points [][]float64, minClusterSize int) (groups [][]int, err error) {
	defer func() {
		if r := recover(); r != nil {
			groups, err = nil, fmt.Errorf("hdbscan: %v", r)
		}
	}()

	clustering, err := hdbscan.NewClustering(points, minClusterSize)
	if err != nil {
		return nil, fmt.Errorf("creating hdbscan clustering: %w", err)
	}
	clustering = clustering.OutlierDetection()
	if err := clustering.Run(cosineDistance, hdbscan.VarianceScore, true); err != nil {
		return nil, fmt.Errorf("running hdbscan: %w", err)
	}
	return extractGroups(clustering, len(points)), nil
}

// extractGroups reads cluster membership through reflection; the library
// keeps its cluster type unexported. A point claimed by several clusters
// stays with the first.
func extractGroups(clustering *hdbscan.Clustering, n int) [][]int {
	v := reflect.ValueOf(clustering).Elem()
	field := v.FieldByName("Clusters")
	if !field.IsValid() || field.Kind() != reflect.Slice {
		return nil
	}

	assigned := make([]bool, n)
	var groups [][]int
	for i := 0; i < field.Len(); i++ {
		c := field.Index(i)
		if c.Kind() == reflect.Ptr {
			if c.IsNil() {
				continue
			}
			c = c.Elem()
		}
		points := c.FieldByName("Points")
		if !points.IsValid() || points.Kind() != reflect.Slice {
			continue
		}
		var members []int
		for j := 0; j < points.Len(); j++ {
			idx := int(points.Index(j).Int())
			if idx < 0 || idx >= n || assigned[idx] {
				continue
			}
			assigned[idx] = true
			members = append(members, idx)
		}
		if len(members) > 0 {
			sort.Ints(members)
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// cosineDistance is 1 - cosine similarity, in [0, 2].
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - math.Max(-1, math.Min(1, sim))
}
