package main

import (
	"slices"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

type seedRole struct {
	Name        string
	Description string
	Permissions []string
}

// rolePlan derives the default roles from the permission catalog.
func rolePlan(catalog []rbac.CatalogEntry) []seedRole {
	admin := seedRole{Name: "Admin", Description: "full access"}
	editor := seedRole{Name: "Editor", Description: "maintains users and holidays"}
	viewer := seedRole{Name: "Viewer", Description: "read-only access"}

	for _, e := range catalog {
		name := e.Name()
		admin.Permissions = append(admin.Permissions, name)
		if e.Action == "read" {
			viewer.Permissions = append(viewer.Permissions, name)
			editor.Permissions = append(editor.Permissions, name)
			continue
		}
		if (e.Resource == "users" || e.Resource == "holidays") && (e.Action == "create" || e.Action == "update") {
			editor.Permissions = append(editor.Permissions, name)
		}
	}
	for _, r := range []*seedRole{&admin, &editor, &viewer} {
		slices.Sort(r.Permissions)
	}
	return []seedRole{admin, editor, viewer}
}
