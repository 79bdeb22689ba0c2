// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package nvdstore implements a local cache for NVD CVE feeds with
// sharded storage, attribute selectors and one-shot cursors.
package nvdstore

import "fmt"

// Version is the release version, overridden at build time.
var Version = "v0.0.0"

// VersionInfo returns a summary of the build version.
func VersionInfo() string {
	return fmt.Sprintf("nvdstore %s", Version)
}
