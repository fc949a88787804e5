package segment

import (
	"github.com/Veraticus/rfm-flow/internal/model"
	"gonum.org/v1/gonum/stat"
)

// numFeatures is the width of a feature vector: recency, frequency, monetary.
const numFeatures = 3

// features extracts the raw clustering inputs of each customer.
func features(customers []model.Customer) [][]float64 {
	out := make([][]float64, len(customers))
	for i := range customers {
		c := &customers[i]
		out[i] = []float64{float64(c.Recency), float64(c.Frequency), c.Monetary}
	}
	return out
}

// scaler standardizes each feature to zero mean and unit population variance.
type scaler struct {
	mean [numFeatures]float64
	std  [numFeatures]float64
}

func fitScaler(rows [][]float64) scaler {
	var s scaler
	column := make([]float64, len(rows))
	for j := 0; j < numFeatures; j++ {
		for i, row := range rows {
			column[i] = row[j]
		}
		s.mean[j], s.std[j] = stat.PopMeanStdDev(column, nil)
	}
	return s
}

// transform returns standardized copies of rows. A feature with no variance
// maps to 0 for every row.
func (s scaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, numFeatures)
		for j := 0; j < numFeatures; j++ {
			if s.std[j] == 0 {
				continue
			}
			scaled[j] = (row[j] - s.mean[j]) / s.std[j]
		}
		out[i] = scaled
	}
	return out
}
