package reference

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

//go:embed data/reference.yaml
var embeddedReference []byte

type document struct {
	Cities []string      `yaml:"cities"`
	Banks  []domain.Bank `yaml:"banks"`
}

// Directory serves the closed city and bank sets.
type Directory struct {
	cities []string
	banks  []domain.Bank
	byCode map[string]domain.Bank
	byName map[string]domain.Bank
}

// Load parses the embedded reference data.
func Load() (*Directory, error) {
	return Parse(embeddedReference)
}

func Parse(raw []byte) (*Directory, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse reference yaml: %w", err)
	}
	if len(doc.Cities) == 0 || len(doc.Banks) == 0 {
		return nil, fmt.Errorf("reference data needs cities and banks")
	}

	d := &Directory{
		cities: make([]string, 0, len(doc.Cities)),
		banks:  doc.Banks,
		byCode: make(map[string]domain.Bank, len(doc.Banks)),
		byName: make(map[string]domain.Bank, len(doc.Banks)),
	}
	for _, city := range doc.Cities {
		if city = strings.TrimSpace(city); city != "" {
			d.cities = append(d.cities, city)
		}
	}
	for _, bank := range doc.Banks {
		if bank.AccountDigits < 6 || bank.AccountDigits > 9 {
			return nil, fmt.Errorf("bank %s: account digits %d outside 6-9", bank.Code, bank.AccountDigits)
		}
		if _, dup := d.byCode[bank.Code]; dup {
			return nil, fmt.Errorf("duplicate bank code %s", bank.Code)
		}
		d.byCode[bank.Code] = bank
		d.byName[bank.Name] = bank
	}
	return d, nil
}

func (d *Directory) Cities() []string {
	out := make([]string, len(d.cities))
	copy(out, d.cities)
	return out
}

func (d *Directory) Banks() []domain.Bank {
	out := make([]domain.Bank, len(d.banks))
	copy(out, d.banks)
	return out
}

// BankByCode accepts "12" as well as "012" or "2".
func (d *Directory) BankByCode(code string) (domain.Bank, bool) {
	code = strings.TrimLeft(strings.TrimSpace(code), "0")
	if len(code) == 1 {
		code = "0" + code
	}
	bank, ok := d.byCode[code]
	return bank, ok
}

func (d *Directory) BankByName(name string) (domain.Bank, bool) {
	bank, ok := d.byName[strings.TrimSpace(name)]
	return bank, ok
}
