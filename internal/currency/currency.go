package currency

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed currencies.yaml
var catalogYAML []byte

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ErrInvalidCode is returned by Normalize for anything that is not a three
// letter code.
var ErrInvalidCode = errors.New("通貨コードは3文字のアルファベットで指定してください")

type Currency struct {
	Code     string `yaml:"code" json:"code"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Name     string `yaml:"name" json:"name"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

type Catalog struct {
	list   []Currency
	byCode map[string]Currency
}

// Parse reads a catalog in the currencies.yaml format.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Currencies []Currency `yaml:"currencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse currency catalog: %w", err)
	}
	c := &Catalog{byCode: make(map[string]Currency, len(doc.Currencies))}
	for _, cur := range doc.Currencies {
		code, err := Normalize(cur.Code)
		if err != nil {
			return nil, fmt.Errorf("currency %q: %w", cur.Code, err)
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("currency %q listed twice", code)
		}
		cur.Code = code
		c.list = append(c.list, cur)
		c.byCode[code] = cur
	}
	return c, nil
}

var defaultCatalog = mustParse(catalogYAML)

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the embedded catalog.
func Default() *Catalog { return defaultCatalog }

// Normalize trims and upper-cases code and checks it looks like an ISO 4217 code.
func Normalize(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(c) {
		return "", ErrInvalidCode
	}
	return c, nil
}

// List returns the catalog entries in file order.
func (c *Catalog) List() []Currency {
	out := make([]Currency, len(c.list))
	copy(out, c.list)
	return out
}

func (c *Catalog) Lookup(code string) (Currency, bool) {
	cur, ok := c.byCode[strings.ToUpper(code)]
	return cur, ok
}

// Symbol returns the display symbol for code, or the code itself.
func (c *Catalog) Symbol(code string) string {
	if cur, ok := c.Lookup(code); ok && cur.Symbol != "" {
		return cur.Symbol
	}
	return code
}

// Format renders amount with the precision of its currency, e.g. "¥7,500" or "$12.50".
// Unknown currencies get two decimals and a trailing code.
func (c *Catalog) Format(amount float64, code string) string {
	cur, ok := c.Lookup(code)
	decimals := 2
	if ok {
		decimals = cur.Decimals
	}
	num := groupThousands(strconv.FormatFloat(abs(amount), 'f', decimals, 64))
	sign := ""
	if amount < 0 && strings.Trim(num, "0.,") != "" {
		sign = "-"
	}
	if !ok || cur.Symbol == "" {
		return sign + num + " " + code
	}
	return sign + cur.Symbol + num
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func groupThousands(s string) string {
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(frac)
	return b.String()
}
