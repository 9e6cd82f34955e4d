package repos

import (
	"github.com/google/uuid"
)

// ACLScope identifies the principals a requesting user resolves to. The
// access predicate matches per-user grants, email grants, group grants for
// any held membership, and the public "all" grant.
type ACLScope struct {
	UserID   uuid.UUID
	Email    string
	GroupIDs []uuid.UUID
}

// aclPredicate renders the EXISTS clause gating document visibility. The
// enclosing query must alias document as "d". A document with no grant rows
// matches nothing, so it stays invisible to everyone.
func aclPredicate(scope ACLScope) (string, []any) {
	clause := `EXISTS (
		SELECT 1 FROM document_acl acl
		WHERE acl.document_id = d.id AND (
			(acl.principal_type = 'public' AND acl.principal_id = 'all')
			OR (acl.principal_type = 'user' AND acl.principal_id = ?)
			OR (acl.principal_type = 'email' AND acl.principal_id = ?)`
	args := []any{scope.UserID.String(), scope.Email}

	// The group branch is omitted entirely for users with no memberships so
	// the IN list is never empty.
	if len(scope.GroupIDs) > 0 {
		ids := make([]string, 0, len(scope.GroupIDs))
		for _, id := range scope.GroupIDs {
			ids = append(ids, id.String())
		}
		clause += `
			OR (acl.principal_type = 'group' AND acl.principal_id IN ?)`
		args = append(args, ids)
	}

	clause += `
		)
	)`
	return clause, args
}
