// Package identity maps the free-text recorder names typed into the cash forms to
// stable employee identities.
package identity

import (
	"strings"

	"github.com/dvloznov/cash-ledger/internal/domain"
	"golang.org/x/text/cases"
)

// Unknown groups movements whose recorder name is empty.
const Unknown domain.EmployeeID = "(unknown)"

// Resolver maps a recorder's name to an employee identity.
type Resolver interface {
	Resolve(name string) domain.EmployeeID
}

// ExactResolver uses the name as-is. It is the minimum fallback when nothing better is configured.
type ExactResolver struct{}

// Resolve implements Resolver.
func (ExactResolver) Resolve(name string) domain.EmployeeID {
	if name == "" {
		return Unknown
	}
	return domain.EmployeeID(name)
}

// FoldResolver treats names that differ only in case or spacing as the same employee,
// and applies an optional alias table on top ("M. Rossi" -> "mario rossi").
type FoldResolver struct {
	aliases map[string]domain.EmployeeID
}

// NewFoldResolver creates a resolver. Alias keys and values are folded the same way as names.
func NewFoldResolver(aliases map[string]string) *FoldResolver {
	r := &FoldResolver{aliases: make(map[string]domain.EmployeeID, len(aliases))}
	for from, to := range aliases {
		key := Fold(from)
		target := Fold(to)
		if key == "" || target == "" {
			continue
		}
		r.aliases[key] = domain.EmployeeID(target)
	}
	return r
}

// Resolve implements Resolver.
func (r *FoldResolver) Resolve(name string) domain.EmployeeID {
	key := Fold(name)
	if key == "" {
		return Unknown
	}
	if id, ok := r.aliases[key]; ok {
		return id
	}
	return domain.EmployeeID(key)
}

// Fold trims, collapses inner whitespace and applies Unicode case folding.
// A Caser is stateful, so one is created per call.
func Fold(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	if collapsed == "" {
		return ""
	}
	return cases.Fold().String(collapsed)
}

var (
	_ Resolver = ExactResolver{}
	_ Resolver = (*FoldResolver)(nil)
)
