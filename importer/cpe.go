package importer

import (
	"encoding/json"
	"fmt"
	"strings"
)

const cpePrefix = "cpe:2.3:"

// CPE23Uri is a parsed CPE 2.3 formatted string. Feeds routinely truncate
// trailing components, so anything after the product is optional.
type CPE23Uri struct {
	Uri       string
	Part      string
	Vendor    string
	Product   string
	Version   string
	Update    string
	Edition   string
	Language  string
	SwEdition string
	TargetSw  string
	TargetHw  string
	Other     string
}

var _ json.Unmarshaler = (*CPE23Uri)(nil)

func (c *CPE23Uri) fromUri(uri string) error {
	c.Uri = uri

	if !strings.HasPrefix(uri, cpePrefix) {
		return fmt.Errorf("invalid format, must start with '%s', received: '%s'", cpePrefix, uri)
	}
	parts := strings.Split(uri, ":")
	if len(parts) < 5 {
		return fmt.Errorf("invalid format, must name at least a vendor and product, found %d components", len(parts))
	}

	fields := []*string{
		&c.Part, &c.Vendor, &c.Product, &c.Version, &c.Update, &c.Edition,
		&c.Language, &c.SwEdition, &c.TargetSw, &c.TargetHw, &c.Other,
	}
	for i, field := range fields {
		if i+2 < len(parts) {
			*field = unquote(parts[i+2])
		}
	}

	return nil
}

func NewCPEUri(uri string) (c CPE23Uri, err error) {
	err = c.fromUri(uri)
	return c, err
}

func (c *CPE23Uri) UnmarshalJSON(data []byte) error {
	var uri string
	err := json.Unmarshal(data, &uri)
	if err != nil {
		return err
	}
	return c.fromUri(uri)
}

// HasVersion reports whether the CPE pins a concrete version.
func (c CPE23Uri) HasVersion() bool {
	return c.Version != "" && c.Version != "*" && c.Version != "-"
}

// WithoutVersion is the vendor/product prefix of the CPE.
func (c CPE23Uri) WithoutVersion() string {
	return cpePrefix + strings.Join([]string{c.Part, c.Vendor, c.Product}, ":")
}

func unquote(v string) string {
	var unquoted strings.Builder

	for _, r := range v {
		if r == '\\' {
			continue
		}
		unquoted.WriteRune(r)
	}

	return unquoted.String()
}
