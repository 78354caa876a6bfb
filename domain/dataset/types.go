package dataset

import (
	"fmt"
)

// Column names a column of a simulated trial table
type Column string

const (
	ColTreatment         Column = "treatment"
	ColCovariate         Column = "covariate"
	ColConfoundedCluster Column = "cluster_confounded"
	ColRandomCluster     Column = "cluster_random"
	ColConfoundedOutcome Column = "y_confounded"
	ColRandomOutcome     Column = "y_random"
)

// Columns lists the table layout in export order
var Columns = []Column{
	ColTreatment, ColCovariate, ColConfoundedCluster, ColRandomCluster, ColConfoundedOutcome, ColRandomOutcome,
}

// Row is one synthetic patient
type Row struct {
	Treatment         int     `json:"treatment"`
	Covariate         int     `json:"covariate"`
	ConfoundedCluster int     `json:"cluster_confounded"`
	RandomCluster     int     `json:"cluster_random"`
	ConfoundedOutcome float64 `json:"y_confounded"`
	RandomOutcome     float64 `json:"y_random"`
}

// Table is the columnar form of one replicate's patients. Cluster ids run
// from 1 to Clusters; ids 1..Clusters/2 belong to the control arm.
type Table struct {
	Treatment         []float64
	Covariate         []float64
	ConfoundedCluster []int
	RandomCluster     []int
	ConfoundedOutcome []float64
	RandomOutcome     []float64
	Clusters          int
}

// NewTable allocates a table for n rows over the given number of clusters
func NewTable(n, clusters int) *Table {
	return &Table{
		Treatment:         make([]float64, n),
		Covariate:         make([]float64, n),
		ConfoundedCluster: make([]int, n),
		RandomCluster:     make([]int, n),
		ConfoundedOutcome: make([]float64, n),
		RandomOutcome:     make([]float64, n),
		Clusters:          clusters,
	}
}

// RowCount returns the number of patients
func (t *Table) RowCount() int {
	return len(t.Treatment)
}

// Row returns patient i as a record
func (t *Table) Row(i int) Row {
	return Row{
		Treatment:         int(t.Treatment[i]),
		Covariate:         int(t.Covariate[i]),
		ConfoundedCluster: t.ConfoundedCluster[i],
		RandomCluster:     t.RandomCluster[i],
		ConfoundedOutcome: t.ConfoundedOutcome[i],
		RandomOutcome:     t.RandomOutcome[i],
	}
}

// Numeric returns a float column (treatment, covariate or an outcome)
func (t *Table) Numeric(col Column) ([]float64, error) {
	switch col {
	case ColTreatment:
		return t.Treatment, nil
	case ColCovariate:
		return t.Covariate, nil
	case ColConfoundedOutcome:
		return t.ConfoundedOutcome, nil
	case ColRandomOutcome:
		return t.RandomOutcome, nil
	}
	return nil, fmt.Errorf("column %s is not numeric", col)
}

// Grouping returns a cluster id column
func (t *Table) Grouping(col Column) ([]int, error) {
	switch col {
	case ColConfoundedCluster:
		return t.ConfoundedCluster, nil
	case ColRandomCluster:
		return t.RandomCluster, nil
	}
	return nil, fmt.Errorf("column %s is not a grouping column", col)
}

// WithOutcome returns a shallow copy sharing every column except col, which is
// replaced by values. Used to refit the same design on simulated outcomes.
func (t *Table) WithOutcome(col Column, values []float64) (*Table, error) {
	if len(values) != t.RowCount() {
		return nil, fmt.Errorf("outcome has %d values, table has %d rows", len(values), t.RowCount())
	}
	cp := *t
	switch col {
	case ColConfoundedOutcome:
		cp.ConfoundedOutcome = values
	case ColRandomOutcome:
		cp.RandomOutcome = values
	default:
		return nil, fmt.Errorf("column %s is not an outcome", col)
	}
	return &cp, nil
}

// Validate checks column lengths and cluster id ranges
func (t *Table) Validate() error {
	n := t.RowCount()
	lengths := map[Column]int{
		ColCovariate:         len(t.Covariate),
		ColConfoundedCluster: len(t.ConfoundedCluster),
		ColRandomCluster:     len(t.RandomCluster),
		ColConfoundedOutcome: len(t.ConfoundedOutcome),
		ColRandomOutcome:     len(t.RandomOutcome),
	}
	for col, l := range lengths {
		if l != n {
			return fmt.Errorf("column %s has %d rows, expected %d", col, l, n)
		}
	}
	for i := 0; i < n; i++ {
		if c := t.ConfoundedCluster[i]; c < 1 || c > t.Clusters {
			return fmt.Errorf("row %d: confounded cluster %d out of range", i, c)
		}
		if c := t.RandomCluster[i]; c < 1 || c > t.Clusters {
			return fmt.Errorf("row %d: random cluster %d out of range", i, c)
		}
	}
	return nil
}
