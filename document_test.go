// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeedJSON = `{
  "CVE_data_type": "CVE",
  "CVE_data_format": "MITRE",
  "CVE_data_version": "4.0",
  "CVE_Items": [
    {
      "cve": {
        "data_type": "CVE",
        "data_format": "MITRE",
        "data_version": "4.0",
        "CVE_data_meta": {"ID": "CVE-2018-0001", "ASSIGNER": "cve@mitre.org"},
        "affects": {
          "vendor": {
            "vendor_data": [
              {
                "vendor_name": "juniper",
                "product": {
                  "product_data": [
                    {
                      "product_name": "junos",
                      "version": {
                        "version_data": [
                          {"version_value": "15.1"},
                          {"version_value": "16.1"}
                        ]
                      }
                    }
                  ]
                }
              }
            ]
          }
        },
        "references": {
          "reference_data": [
            {"url": "https://kb.juniper.net/JSA10828", "name": "JSA10828", "refsource": "CONFIRM"}
          ]
        },
        "description": {
          "description_data": [
            {"lang": "en", "value": "A remote code execution vulnerability in Juniper Networks Junos OS."}
          ]
        }
      },
      "configurations": {
        "CVE_data_version": "4.0",
        "nodes": [
          {
            "operator": "OR",
            "cpe": [
              {"vulnerable": true, "cpe23Uri": "cpe:2.3:o:juniper:junos:15.1:*:*:*:*:*:*:*"}
            ]
          }
        ]
      },
      "impact": {
        "baseMetricV2": {
          "severity": "HIGH",
          "exploitabilityScore": 4.9,
          "impactScore": 10.0,
          "cvssV2": {
            "version": "2.0",
            "accessVector": "NETWORK",
            "accessComplexity": "HIGH",
            "authentication": "NONE",
            "confidentialityImpact": "COMPLETE",
            "integrityImpact": "COMPLETE",
            "availabilityImpact": "COMPLETE",
            "baseScore": 7.6
          }
        }
      },
      "publishedDate": "2018-01-10T22:29Z",
      "lastModifiedDate": "2018-02-08T15:23Z"
    }
  ]
}`

// newTestDocument builds a minimal document for storage tests.
func newTestDocument(id string) *Document {
	year := "2018"
	if m := cveYearPattern.FindStringSubmatch(id); m != nil {
		year = m[1]
	}
	published, _ := time.Parse(feedTimeFormat, fmt.Sprintf("%s-01-10T22:29Z", year))
	return &Document{
		CVE: &CVE{
			ID:          id,
			Assigner:    "cve@mitre.org",
			DataVersion: "4.0",
			Descriptions: &DescriptionEntry{
				Data: []DescriptionNode{{Lang: "en", Value: "test description for " + id}},
			},
		},
		Impact: &Impact{
			Severity:    "HIGH",
			ImpactScore: 10.0,
			CVSS:        &CVSSNode{Version: "2.0", BaseScore: 7.6},
		},
		PublishedDate: published,
		ModifiedDate:  published,
	}
}

func TestParseFeedDocuments(t *testing.T) {
	docs, err := ParseFeedDocuments(strings.NewReader(testFeedJSON))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "CVE-2018-0001", doc.ID())
	assert.Equal(t, "cve@mitre.org", doc.CVE.Assigner)
	require.Len(t, doc.CVE.Affects.Data, 1)
	assert.Equal(t, "juniper", doc.CVE.Affects.Data[0].VendorName)
	assert.Equal(t, "junos", doc.CVE.Affects.Data[0].ProductName)
	assert.Equal(t, []string{"15.1", "16.1"}, doc.CVE.Affects.Data[0].Versions)
	require.Len(t, doc.CVE.References.Data, 1)
	assert.Equal(t, "CONFIRM", doc.CVE.References.Data[0].Refsource)
	assert.Equal(t, "HIGH", doc.Impact.Severity)
	assert.Equal(t, 7.6, doc.Impact.CVSS.BaseScore)
	assert.Equal(t, 2018, doc.PublishedDate.Year())
	require.Len(t, doc.Configurations.Nodes, 1)
	assert.Equal(t, "OR", doc.Configurations.Nodes[0].Operator)
	require.Len(t, doc.Configurations.Nodes[0].Data, 1)
	assert.True(t, doc.Configurations.Nodes[0].Data[0].Vulnerable)
}

func TestParseFeedDocumentsMalformed(t *testing.T) {
	_, err := ParseFeedDocuments(strings.NewReader("{not json"))
	if err == nil {
		t.Fatal("expected error for malformed feed")
	}
}

func TestDocumentID(t *testing.T) {
	var doc *Document
	assert.Equal(t, "", doc.ID())
	assert.Equal(t, "", (&Document{}).ID())
	assert.Equal(t, "CVE-2002-0001", newTestDocument("CVE-2002-0001").ID())
}

func TestDocumentPretty(t *testing.T) {
	docs, err := ParseFeedDocuments(strings.NewReader(testFeedJSON))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, docs[0].Pretty(&buf))
	out := buf.String()
	assert.Contains(t, out, "CVE-2018-0001")
	assert.Contains(t, out, "Juniper Networks")
}

func TestResolveAttr(t *testing.T) {
	docs, err := ParseFeedDocuments(strings.NewReader(testFeedJSON))
	require.NoError(t, err)
	doc := docs[0]

	tests := []struct {
		attr string
		want []interface{}
	}{
		{"cve.id_", []interface{}{"CVE-2018-0001"}},
		{"cve.affects.data.vendor_name", []interface{}{"juniper"}},
		{"cve.affects.data.product_name", []interface{}{"junos"}},
		{"cve.affects.data.versions", []interface{}{"15.1", "16.1"}},
		{"cve.references.data.refsource", []interface{}{"CONFIRM"}},
		{"cve.descriptions.data.lang", []interface{}{"en"}},
		{"impact.cvss.base_score", []interface{}{7.6}},
		{"impact.severity", []interface{}{"HIGH"}},
		{"configurations.nodes.operator", []interface{}{"OR"}},
	}
	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			got := resolveAttr(doc, tt.attr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAttrUnknown(t *testing.T) {
	docs, err := ParseFeedDocuments(strings.NewReader(testFeedJSON))
	require.NoError(t, err)

	got := resolveAttr(docs[0], "cve.no_such_attribute")
	assert.Empty(t, got)
}
