package rules

import (
	_ "embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"studypair/internal/series"
	"studypair/internal/services"
)

//go:embed sample_rules.xml
var sampleRules string

// Rule is the tag tuple a record must carry to be eligible for one side of a pair.
type Rule struct {
	Modality     string
	ScanRole     string
	Orientation  string
	IsVolumetric bool
}

// Set holds the primary (functional) and secondary (anatomical) rules.
type Set struct {
	Primary   Rule
	Secondary Rule
}

// Matches reports whether rec carries exactly the rule's tags. String fields
// compare case-insensitively.
func (r Rule) Matches(rec series.Record) bool {
	return equalFold(r.Modality, rec.Modality) &&
		equalFold(r.ScanRole, rec.ScanRole) &&
		equalFold(r.Orientation, rec.Orientation) &&
		r.IsVolumetric == rec.IsVolumetric
}

// SameModality reports whether rec belongs to the rule's modality.
func (r Rule) SameModality(rec series.Record) bool {
	return equalFold(r.Modality, rec.Modality)
}

func (r Rule) String() string {
	return fmt.Sprintf("%s/%s/%s/3d=%t", r.Modality, r.ScanRole, r.Orientation, r.IsVolumetric)
}

// ConfigurationError reports a missing or malformed rule file.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("rule configuration: %v", e.Err)
	}
	return fmt.Sprintf("rule configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{services.ErrConfiguration, e.Err}
}

type ruleDocument struct {
	XMLName  xml.Name
	Children []ruleElement `xml:",any"`
}

type ruleElement struct {
	XMLName     xml.Name
	Modality    string `xml:"Modality"`
	ScanType    string `xml:"ScanType"`
	Orientation string `xml:"Orientation"`
	Is3D        string `xml:"Is3D"`
}

// Load reads and parses the rule file at path.
func Load(path string) (Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return Set{}, &ConfigurationError{Path: path, Err: err}
	}
	defer file.Close()

	set, err := Parse(file)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return Set{}, err
	}
	return set, nil
}

// Parse decodes a rule document.
func Parse(r io.Reader) (Set, error) {
	var doc ruleDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Set{}, &ConfigurationError{Err: fmt.Errorf("decode xml: %w", err)}
	}
	if len(doc.Children) < 2 {
		return Set{}, &ConfigurationError{Err: fmt.Errorf("expected two rule elements under <%s>, found %d", doc.XMLName.Local, len(doc.Children))}
	}

	pi, si := childIndex(doc.Children, "Primary"), childIndex(doc.Children, "Secondary")
	switch {
	case pi >= 0 && si < 0:
		si = otherChild(len(doc.Children), pi)
	case si >= 0 && pi < 0:
		pi = otherChild(len(doc.Children), si)
	case pi < 0 && si < 0:
		pi, si = 0, 1
	}
	primary, secondary := doc.Children[pi], doc.Children[si]

	set := Set{Primary: primary.rule(), Secondary: secondary.rule()}
	if set.Primary.Modality == "" || set.Secondary.Modality == "" {
		return Set{}, &ConfigurationError{Err: errors.New("rule elements must declare a Modality")}
	}
	return set, nil
}

// childIndex returns the position of the first child with the given name, or -1.
func childIndex(children []ruleElement, name string) int {
	for i, child := range children {
		if strings.EqualFold(child.XMLName.Local, name) {
			return i
		}
	}
	return -1
}

// otherChild returns the first position that is not taken; n is at least two.
func otherChild(n, taken int) int {
	for i := 0; i < n; i++ {
		if i != taken {
			return i
		}
	}
	return -1
}

func (e ruleElement) rule() Rule {
	return Rule{
		Modality:     strings.TrimSpace(e.Modality),
		ScanRole:     strings.TrimSpace(e.ScanType),
		Orientation:  strings.TrimSpace(e.Orientation),
		IsVolumetric: strings.EqualFold(strings.TrimSpace(e.Is3D), "true"),
	}
}

// WriteSample writes an example rule file pairing attenuation-corrected PET
// with axial volumetric CT.
func WriteSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rule directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		return fmt.Errorf("write sample rules: %w", err)
	}
	return nil
}

func equalFold(a, b string) bool {
	caser := cases.Fold()
	return caser.String(strings.TrimSpace(a)) == caser.String(strings.TrimSpace(b))
}
