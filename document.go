// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/molecula/nvdstore/errors"
)

// feedTimeFormat is the timestamp layout used by NVD JSON feed 1.0.
const feedTimeFormat = "2006-01-02T15:04Z"

// Document is a single normalized NVD feed entry. Documents are treated as
// immutable once parsed; adapters store and retrieve them wholesale and the
// selector engine reads them through dotted attribute paths (see resolve.go).
type Document struct {
	CVE            *CVE
	Configurations *Configurations
	Impact         *Impact
	PublishedDate  time.Time
	ModifiedDate   time.Time
}

// ID returns the document's CVE identifier, or "" if it carries none.
func (d *Document) ID() string {
	if d == nil || d.CVE == nil {
		return ""
	}
	return d.CVE.ID
}

// Pretty writes an indented JSON rendering of the document to w.
func (d *Document) Pretty(w io.Writer) error {
	b, err := json.MarshalIndent(d, "", "   ")
	if err != nil {
		return errors.Wrap(err, "rendering document")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// CVE holds the core CVE object of a feed entry.
type CVE struct {
	ID          string
	Assigner    string
	DataVersion string

	Affects      *AffectsEntry
	References   *ReferenceEntry
	Descriptions *DescriptionEntry
}

// DescriptionNode is one localized description of a CVE.
type DescriptionNode struct {
	Lang  string
	Value string
}

// DescriptionEntry is the list of descriptions attached to a CVE.
type DescriptionEntry struct {
	Data []DescriptionNode
}

// ReferenceNode is one external reference attached to a CVE.
type ReferenceNode struct {
	URL       string
	Name      string
	Refsource string
}

// ReferenceEntry is the list of references attached to a CVE.
type ReferenceEntry struct {
	Data []ReferenceNode
}

// ProductNode is one affected vendor/product pair with its version list.
type ProductNode struct {
	VendorName  string
	ProductName string
	Versions    []string
}

// AffectsEntry is the flattened affected-product list of a CVE.
type AffectsEntry struct {
	Data []ProductNode
}

// ConfigurationsNode is one CPE entry within a configuration node.
type ConfigurationsNode struct {
	Vulnerable bool
	CPE        string
}

// ConfigurationsEntry is one configuration node with its boolean operator.
type ConfigurationsEntry struct {
	Operator string
	Data     []ConfigurationsNode
}

// Configurations holds the configuration tree of a feed entry.
type Configurations struct {
	CVEDataVersion string
	Nodes          []ConfigurationsEntry
}

// CVSSNode holds the CVSS v2 vector of a feed entry.
type CVSSNode struct {
	Version               string
	AccessVector          string
	AccessComplexity      string
	Authentication        string
	ConfidentialityImpact string
	IntegrityImpact       string
	AvailabilityImpact    string
	BaseScore             float64
}

// Impact holds the impact metrics of a feed entry.
type Impact struct {
	Severity            string
	ExploitabilityScore float64
	ImpactScore         float64
	CVSS                *CVSSNode
}

// Raw feed shapes, matching the NVD JSON feed 1.0 schema. Only the fields
// the model carries are decoded; everything else is dropped.

type rawFeed struct {
	CVEItems []rawEntry `json:"CVE_Items"`
}

type rawEntry struct {
	CVE              rawCVE             `json:"cve"`
	Configurations   *rawConfigurations `json:"configurations"`
	Impact           *rawImpact         `json:"impact"`
	PublishedDate    string             `json:"publishedDate"`
	LastModifiedDate string             `json:"lastModifiedDate"`
}

type rawCVE struct {
	Meta struct {
		ID       string `json:"ID"`
		Assigner string `json:"ASSIGNER"`
	} `json:"CVE_data_meta"`
	DataVersion string `json:"data_version"`
	Affects     struct {
		Vendor struct {
			VendorData []struct {
				VendorName string `json:"vendor_name"`
				Product    struct {
					ProductData []struct {
						ProductName string `json:"product_name"`
						Version     struct {
							VersionData []struct {
								VersionValue string `json:"version_value"`
							} `json:"version_data"`
						} `json:"version"`
					} `json:"product_data"`
				} `json:"product"`
			} `json:"vendor_data"`
		} `json:"vendor"`
	} `json:"affects"`
	References struct {
		ReferenceData []struct {
			URL       string `json:"url"`
			Name      string `json:"name"`
			Refsource string `json:"refsource"`
		} `json:"reference_data"`
	} `json:"references"`
	Description struct {
		DescriptionData []struct {
			Lang  string `json:"lang"`
			Value string `json:"value"`
		} `json:"description_data"`
	} `json:"description"`
}

type rawConfigurations struct {
	CVEDataVersion string `json:"CVE_data_version"`
	Nodes          []struct {
		Operator string `json:"operator"`
		CPE      []struct {
			Vulnerable bool   `json:"vulnerable"`
			CPE23URI   string `json:"cpe23Uri"`
		} `json:"cpe"`
	} `json:"nodes"`
}

type rawImpact struct {
	BaseMetricV2 *struct {
		Severity            string  `json:"severity"`
		ExploitabilityScore float64 `json:"exploitabilityScore"`
		ImpactScore         float64 `json:"impactScore"`
		CVSSV2              *struct {
			Version               string  `json:"version"`
			AccessVector          string  `json:"accessVector"`
			AccessComplexity      string  `json:"accessComplexity"`
			Authentication        string  `json:"authentication"`
			ConfidentialityImpact string  `json:"confidentialityImpact"`
			IntegrityImpact       string  `json:"integrityImpact"`
			AvailabilityImpact    string  `json:"availabilityImpact"`
			BaseScore             float64 `json:"baseScore"`
		} `json:"cvssV2"`
	} `json:"baseMetricV2"`
}

// ParseFeedDocuments decodes a full NVD JSON feed and returns its entries as
// Documents. Entries that fail to parse abort the whole decode; feeds are
// published as a unit and a malformed entry means a malformed feed.
func ParseFeedDocuments(r io.Reader) ([]*Document, error) {
	var feed rawFeed
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		return nil, errors.Wrap(err, "decoding feed")
	}

	docs := make([]*Document, 0, len(feed.CVEItems))
	for i := range feed.CVEItems {
		doc, err := parseEntry(&feed.CVEItems[i])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing feed entry %d", i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ParseDocument decodes a single feed entry.
func ParseDocument(data []byte) (*Document, error) {
	var entry rawEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, "decoding feed entry")
	}
	return parseEntry(&entry)
}

func parseEntry(entry *rawEntry) (*Document, error) {
	doc := &Document{
		CVE: parseCVE(&entry.CVE),
	}

	if entry.Configurations != nil {
		doc.Configurations = parseConfigurations(entry.Configurations)
	}
	if entry.Impact != nil {
		doc.Impact = parseImpact(entry.Impact)
	}

	var err error
	if entry.PublishedDate != "" {
		doc.PublishedDate, err = time.Parse(feedTimeFormat, entry.PublishedDate)
		if err != nil {
			return nil, errors.Wrap(err, "parsing publishedDate")
		}
	}
	if entry.LastModifiedDate != "" {
		doc.ModifiedDate, err = time.Parse(feedTimeFormat, entry.LastModifiedDate)
		if err != nil {
			return nil, errors.Wrap(err, "parsing lastModifiedDate")
		}
	}
	return doc, nil
}

func parseCVE(raw *rawCVE) *CVE {
	cve := &CVE{
		ID:          raw.Meta.ID,
		Assigner:    raw.Meta.Assigner,
		DataVersion: raw.DataVersion,
	}

	affects := &AffectsEntry{}
	for _, vendor := range raw.Affects.Vendor.VendorData {
		for _, product := range vendor.Product.ProductData {
			versions := make([]string, 0, len(product.Version.VersionData))
			for _, v := range product.Version.VersionData {
				versions = append(versions, v.VersionValue)
			}
			affects.Data = append(affects.Data, ProductNode{
				VendorName:  vendor.VendorName,
				ProductName: product.ProductName,
				Versions:    versions,
			})
		}
	}
	cve.Affects = affects

	refs := &ReferenceEntry{}
	for _, ref := range raw.References.ReferenceData {
		refs.Data = append(refs.Data, ReferenceNode{
			URL:       ref.URL,
			Name:      ref.Name,
			Refsource: ref.Refsource,
		})
	}
	cve.References = refs

	descs := &DescriptionEntry{}
	for _, desc := range raw.Description.DescriptionData {
		descs.Data = append(descs.Data, DescriptionNode{
			Lang:  desc.Lang,
			Value: desc.Value,
		})
	}
	cve.Descriptions = descs

	return cve
}

func parseConfigurations(raw *rawConfigurations) *Configurations {
	conf := &Configurations{CVEDataVersion: raw.CVEDataVersion}
	for _, node := range raw.Nodes {
		entry := ConfigurationsEntry{Operator: node.Operator}
		for _, cpe := range node.CPE {
			entry.Data = append(entry.Data, ConfigurationsNode{
				Vulnerable: cpe.Vulnerable,
				CPE:        cpe.CPE23URI,
			})
		}
		conf.Nodes = append(conf.Nodes, entry)
	}
	return conf
}

func parseImpact(raw *rawImpact) *Impact {
	if raw.BaseMetricV2 == nil {
		return nil
	}
	impact := &Impact{
		Severity:            raw.BaseMetricV2.Severity,
		ExploitabilityScore: raw.BaseMetricV2.ExploitabilityScore,
		ImpactScore:         raw.BaseMetricV2.ImpactScore,
	}
	if cvss := raw.BaseMetricV2.CVSSV2; cvss != nil {
		impact.CVSS = &CVSSNode{
			Version:               cvss.Version,
			AccessVector:          cvss.AccessVector,
			AccessComplexity:      cvss.AccessComplexity,
			Authentication:        cvss.Authentication,
			ConfidentialityImpact: cvss.ConfidentialityImpact,
			IntegrityImpact:       cvss.IntegrityImpact,
			AvailabilityImpact:    cvss.AvailabilityImpact,
			BaseScore:             cvss.BaseScore,
		}
	}
	return impact
}
