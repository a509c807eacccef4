//go:build windows

// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// Well-known groups that must not be granted access to a signing key
var broadTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkOpenFilePermissions reads the DACL of an open key file. NTFS does not
// allow replacing a file that is held open, so checking by name is safe.
func checkOpenFilePermissions(f *os.File) error {
	if strings.EqualFold(os.Getenv(envAllowInsecureKeyPerms), "true") {
		return nil
	}
	sd, err := windows.GetNamedSecurityInfo(
		f.Name(),
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf(
			"failed to get security info for %q: %w",
			f.Name(),
			err,
		)
	}
	// sd is not freed: that needs unsafe.Pointer, and keys are loaded once
	sddl := sd.String()
	if sddl == "" {
		return fmt.Errorf(
			"failed to read security descriptor for %q",
			f.Name(),
		)
	}
	return checkDACL(f.Name(), sddl)
}

// checkDACL rejects an SDDL string whose DACL is missing or has an allow
// entry for a broad group
func checkDACL(path, sddl string) error {
	aces, ok := allowedTrustees(sddl)
	if !ok {
		return fmt.Errorf(
			"key file %q has no DACL (unrestricted access): %w",
			path,
			ErrInsecureFileMode,
		)
	}
	for _, trustee := range aces {
		if name, found := broadTrustees[trustee]; found {
			return fmt.Errorf(
				"key file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
	return nil
}

// allowedTrustees returns the trustee of every ACCESS_ALLOWED entry of the
// DACL section, and false when there is no DACL section
func allowedTrustees(sddl string) ([]string, bool) {
	idx := strings.Index(sddl, "D:")
	if idx < 0 {
		return nil, false
	}
	dacl := sddl[idx+2:]
	if end := strings.Index(dacl, "S:"); end >= 0 {
		dacl = dacl[:end]
	}
	var ret []string
	for {
		start := strings.IndexByte(dacl, '(')
		if start < 0 {
			break
		}
		end := strings.IndexByte(dacl[start:], ')')
		if end < 0 {
			break
		}
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(dacl[start+1:start+end], ";")
		dacl = dacl[start+end+1:]
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		ret = append(ret, fields[5])
	}
	return ret, true
}
