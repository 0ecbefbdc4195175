package access

import "github.com/sealfeed/sealfeed/pkg/identity"

// ServiceContext is what a strategy may consult when reconstructing a
// candidate identifier.
type ServiceContext struct {
	// ServiceID is the normalized hex of the service object gating the
	// content.
	ServiceID identity.Identifier
	// PackageID is the contract package scope.
	PackageID string
}

// Strategy reconstructs one candidate identifier from the identifier
// parsed out of the ciphertext and the current service context. Returning
// false means the strategy does not apply to this input.
//
// The identifier scheme changed between generations of the publish flow;
// keeping reconstruction behind this type means a third scheme is one more
// list entry, not new orchestrator control flow.
type Strategy struct {
	Name    string
	Rebuild func(original identity.Identifier, svc ServiceContext) (identity.Identifier, bool)
}

// DefaultStrategies returns the candidate list in fixed priority order:
//
//  1. service-prefix: the current service reference spliced over the
//     parsed identifier's prefix, keeping its nonce suffix. Covers content
//     encrypted under the service-scoped scheme.
//  2. original: the parsed identifier verbatim. Covers content encrypted
//     under the default-prefix scheme, before the creator had a service.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "service-prefix",
			Rebuild: func(original identity.Identifier, svc ServiceContext) (identity.Identifier, bool) {
				prefix, err := svc.ServiceID.Bytes()
				if err != nil || len(prefix) == 0 {
					return "", false
				}
				return identity.RebuildWithPrefix(prefix, original)
			},
		},
		{
			Name: "original",
			Rebuild: func(original identity.Identifier, _ ServiceContext) (identity.Identifier, bool) {
				return original, true
			},
		},
	}
}
