// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"strings"
	"time"
)

// Attribute path resolution.
//
// Selectors address documents through dotted paths using the feed's own
// field vocabulary, e.g. "cve.id_" or "cve.affects.data.vendor_name".
// Resolution walks the closed set of model types with an explicit accessor
// per type; list segments fan out, so a path crossing a list yields one
// candidate value per element. No reflection is involved.
//
// A missing or mistyped path resolves to no candidates, which every
// selector treats as a non-match.

// resolveAttr returns all candidate scalar values a dotted path addresses
// within doc. Scalars are string, bool, float64 or time.Time.
func resolveAttr(doc *Document, attr string) []interface{} {
	if doc == nil || attr == "" {
		return nil
	}
	return resolveNode(doc, strings.Split(attr, "."))
}

func resolveNode(node interface{}, path []string) []interface{} {
	if node == nil {
		return nil
	}
	if len(path) == 0 {
		return flatten(node)
	}

	child, ok := attrChild(node, path[0])
	if !ok || child == nil {
		return nil
	}
	rest := path[1:]

	switch v := child.(type) {
	case []ProductNode:
		var out []interface{}
		for i := range v {
			out = append(out, resolveNode(&v[i], rest)...)
		}
		return out
	case []ReferenceNode:
		var out []interface{}
		for i := range v {
			out = append(out, resolveNode(&v[i], rest)...)
		}
		return out
	case []DescriptionNode:
		var out []interface{}
		for i := range v {
			out = append(out, resolveNode(&v[i], rest)...)
		}
		return out
	case []ConfigurationsEntry:
		var out []interface{}
		for i := range v {
			out = append(out, resolveNode(&v[i], rest)...)
		}
		return out
	case []ConfigurationsNode:
		var out []interface{}
		for i := range v {
			out = append(out, resolveNode(&v[i], rest)...)
		}
		return out
	default:
		return resolveNode(child, rest)
	}
}

// flatten turns a terminal resolution result into scalar candidates.
func flatten(node interface{}) []interface{} {
	switch v := node.(type) {
	case []string:
		out := make([]interface{}, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out
	case string, bool, float64, time.Time:
		return []interface{}{v}
	default:
		// Terminal paths addressing a struct (e.g. "cve.affects") carry no
		// comparable scalar value.
		return nil
	}
}

// attrChild maps one path segment onto a model field. The segment names
// mirror the upstream feed schema, including trailing-underscore "id_".
func attrChild(node interface{}, name string) (interface{}, bool) {
	switch v := node.(type) {
	case *Document:
		if v == nil {
			return nil, false
		}
		switch name {
		case "cve":
			return v.CVE, true
		case "configurations":
			return v.Configurations, true
		case "impact":
			return v.Impact, true
		case "published_date":
			return v.PublishedDate, true
		case "modified_date":
			return v.ModifiedDate, true
		}
	case *CVE:
		if v == nil {
			return nil, false
		}
		switch name {
		case "id_":
			return v.ID, true
		case "assigner":
			return v.Assigner, true
		case "data_version":
			return v.DataVersion, true
		case "affects":
			return v.Affects, true
		case "references":
			return v.References, true
		case "descriptions":
			return v.Descriptions, true
		}
	case *AffectsEntry:
		if v == nil {
			return nil, false
		}
		if name == "data" {
			return v.Data, true
		}
	case *ReferenceEntry:
		if v == nil {
			return nil, false
		}
		if name == "data" {
			return v.Data, true
		}
	case *DescriptionEntry:
		if v == nil {
			return nil, false
		}
		if name == "data" {
			return v.Data, true
		}
	case *ProductNode:
		if v == nil {
			return nil, false
		}
		switch name {
		case "vendor_name":
			return v.VendorName, true
		case "product_name":
			return v.ProductName, true
		case "versions":
			return v.Versions, true
		}
	case *ReferenceNode:
		if v == nil {
			return nil, false
		}
		switch name {
		case "url":
			return v.URL, true
		case "name":
			return v.Name, true
		case "refsource":
			return v.Refsource, true
		}
	case *DescriptionNode:
		if v == nil {
			return nil, false
		}
		switch name {
		case "lang":
			return v.Lang, true
		case "value":
			return v.Value, true
		}
	case *Configurations:
		if v == nil {
			return nil, false
		}
		switch name {
		case "cve_data_version":
			return v.CVEDataVersion, true
		case "nodes":
			return v.Nodes, true
		}
	case *ConfigurationsEntry:
		if v == nil {
			return nil, false
		}
		switch name {
		case "operator":
			return v.Operator, true
		case "data":
			return v.Data, true
		}
	case *ConfigurationsNode:
		if v == nil {
			return nil, false
		}
		switch name {
		case "vulnerable":
			return v.Vulnerable, true
		case "cpe":
			return v.CPE, true
		}
	case *Impact:
		if v == nil {
			return nil, false
		}
		switch name {
		case "severity":
			return v.Severity, true
		case "exploitability_score":
			return v.ExploitabilityScore, true
		case "impact_score":
			return v.ImpactScore, true
		case "cvss":
			return v.CVSS, true
		}
	case *CVSSNode:
		if v == nil {
			return nil, false
		}
		switch name {
		case "version":
			return v.Version, true
		case "access_vector":
			return v.AccessVector, true
		case "access_complexity":
			return v.AccessComplexity, true
		case "authentication":
			return v.Authentication, true
		case "confidentiality_impact":
			return v.ConfidentialityImpact, true
		case "integrity_impact":
			return v.IntegrityImpact, true
		case "availability_impact":
			return v.AvailabilityImpact, true
		case "base_score":
			return v.BaseScore, true
		}
	}
	return nil, false
}
