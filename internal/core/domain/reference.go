package domain

type Branch struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	City string `yaml:"city" json:"city"`
}

type Bank struct {
	Code          string   `yaml:"code" json:"code"`
	Name          string   `yaml:"name" json:"name"`
	AccountDigits int      `yaml:"account_digits" json:"account_digits"`
	Branches      []Branch `yaml:"branches" json:"branches,omitempty"`
}

// HasBranch reports membership; banks without a known list accept any branch.
func (b Bank) HasBranch(code string) bool {
	if len(b.Branches) == 0 {
		return true
	}
	for _, branch := range b.Branches {
		if branch.Code == code {
			return true
		}
	}
	return false
}
