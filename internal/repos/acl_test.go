package repos

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestACLPredicate_RendersEveryPrincipalBranch(t *testing.T) {
	scope := ACLScope{
		UserID:   uuid.New(),
		Email:    "dev@technova.io",
		GroupIDs: []uuid.UUID{uuid.New(), uuid.New()},
	}
	clause, args := aclPredicate(scope)

	if !strings.HasPrefix(strings.TrimSpace(clause), "EXISTS (") {
		t.Fatalf("visibility requires a grant row to exist, got %q", clause)
	}
	for _, branch := range []string{
		"acl.principal_type = 'public' AND acl.principal_id = 'all'",
		"acl.principal_type = 'user' AND acl.principal_id = ?",
		"acl.principal_type = 'email' AND acl.principal_id = ?",
		"acl.principal_type = 'group' AND acl.principal_id IN ?",
	} {
		if !strings.Contains(clause, branch) {
			t.Fatalf("missing branch %q in %q", branch, clause)
		}
	}

	if len(args) != 3 {
		t.Fatalf("got args %#v", args)
	}
	if args[0] != scope.UserID.String() {
		t.Fatalf("user binding: got %v", args[0])
	}
	if args[1] != scope.Email {
		t.Fatalf("email binding: got %v", args[1])
	}
	ids, ok := args[2].([]string)
	if !ok || len(ids) != 2 {
		t.Fatalf("group binding: got %#v", args[2])
	}
	if ids[0] != scope.GroupIDs[0].String() || ids[1] != scope.GroupIDs[1].String() {
		t.Fatalf("group binding: got %v", ids)
	}
}

func TestACLPredicate_NoMembershipsOmitsGroupBranch(t *testing.T) {
	clause, args := aclPredicate(ACLScope{UserID: uuid.New(), Email: "dev@technova.io"})

	if strings.Contains(clause, "'group'") {
		t.Fatalf("group branch must be absent without memberships: %q", clause)
	}
	if len(args) != 2 {
		t.Fatalf("got args %#v", args)
	}
}
