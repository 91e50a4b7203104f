package analyzer

import (
	"sort"

	"github.com/MagicManBen/CheckLoops/generic"
)

// Report is the inventory produced by one scan.
type Report struct {
	Names        []string         `json:"names"`
	References   []TableReference `json:"references"`
	FilesScanned int              `json:"files_scanned"`
	Tally        generic.Tally    `json:"tally"`

	// Err aggregates per-file read failures.
	Err error `json:"-"`
}

// ByFile groups references by file.
func (r *Report) ByFile() map[string][]TableReference {
	out := make(map[string][]TableReference)
	for _, ref := range r.References {
		out[ref.File] = append(out[ref.File], ref)
	}
	return out
}

// Files returns the files holding at least one reference, sorted.
func (r *Report) Files() []string {
	seen := map[string]bool{}
	var files []string
	for _, ref := range r.References {
		if !seen[ref.File] {
			seen[ref.File] = true
			files = append(files, ref.File)
		}
	}
	sort.Strings(files)
	return files
}

// Hard returns the call and query references.
func (r *Report) Hard() []TableReference {
	var out []TableReference
	for _, ref := range r.References {
		if ref.Hard() {
			out = append(out, ref)
		}
	}
	return out
}

// CountByName returns hard and descriptive counts per tracked name.
func (r *Report) CountByName() map[string]NameCount {
	out := make(map[string]NameCount, len(r.Names))
	for _, n := range r.Names {
		out[n] = NameCount{}
	}
	for _, ref := range r.References {
		c := out[ref.Name]
		if ref.Hard() {
			c.Hard++
		} else {
			c.Descriptive++
		}
		out[ref.Name] = c
	}
	return out
}

type NameCount struct {
	Hard        int `json:"hard"`
	Descriptive int `json:"descriptive"`
}
