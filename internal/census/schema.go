// Package census reads the UCI census-income data and turns it into
// one-hot encoded feature matrices with per-task labels.
package census

import "errors"

// ErrSchema is returned for records that do not match the census layout.
var ErrSchema = errors.New("census schema")

// Columns lists the census-income fields in file order.
var Columns = []string{
	"age", "class_worker", "det_ind_code", "det_occ_code", "education", "wage_per_hour", "hs_college",
	"marital_stat", "major_ind_code", "major_occ_code", "race", "hisp_origin", "sex", "union_member",
	"unemp_reason", "full_or_part_emp", "capital_gains", "capital_losses", "stock_dividends",
	"tax_filer_stat", "region_prev_res", "state_prev_res", "det_hh_fam_stat", "det_hh_summ",
	"instance_weight", "mig_chg_msa", "mig_chg_reg", "mig_move_reg", "mig_same", "mig_prev_sunbelt",
	"num_emp", "fam_under_18", "country_father", "country_mother", "country_self", "citizenship",
	"own_or_self", "vet_question", "vet_benefits", "weeks_worked", "year", "income_50k",
}

// CategoricalColumns are one-hot encoded. Every other non-label column is numeric.
var CategoricalColumns = []string{
	"class_worker", "det_ind_code", "det_occ_code", "education", "hs_college", "major_ind_code",
	"major_occ_code", "race", "hisp_origin", "sex", "union_member", "unemp_reason",
	"full_or_part_emp", "tax_filer_stat", "region_prev_res", "state_prev_res", "det_hh_fam_stat",
	"det_hh_summ", "mig_chg_msa", "mig_chg_reg", "mig_move_reg", "mig_same", "mig_prev_sunbelt",
	"fam_under_18", "country_father", "country_mother", "country_self", "citizenship",
	"vet_question",
}

// Task binds a prediction task to its source column and positive value.
type Task struct {
	Name     string
	Column   string
	Positive string
}

// Tasks are the first task group of the census MMoE experiments, ordered by name.
var Tasks = []Task{
	{Name: "income", Column: "income_50k", Positive: "50000+."},
	{Name: "marital", Column: "marital_stat", Positive: "Never married"},
}

func columnIndex(name string) int {
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func isLabel(col string) bool {
	for _, t := range Tasks {
		if t.Column == col {
			return true
		}
	}
	return false
}

func isCategorical(col string) bool {
	for _, c := range CategoricalColumns {
		if c == col {
			return true
		}
	}
	return false
}
