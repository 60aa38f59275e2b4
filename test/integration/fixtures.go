package integration

// roleKeys describes the role model as the backend's metadata reports it.
func roleKeys() []any {
	return []any{
		map[string]any{"name": "id", "type": "integer", "read_only": true},
		map[string]any{"name": "name", "type": "CharField", "required": true},
		map[string]any{"name": "active", "type": "BooleanField", "default": true},
		map[string]any{"name": "category_id", "related_model": "catalog.category"},
		map[string]any{"name": "icon", "type": "ImageField"},
	}
}

// defaultCatalog returns a categorized endpoint catalog with a role
// resource in the accounts app and a read-only category list.
func defaultCatalog() map[string]any {
	return catalogWith(map[string]any{
		"accounts": []any{
			map[string]any{"name": "role-list", "path": "api/accounts/roles/", "methods": []any{"GET", "POST"}, "keys": roleKeys()},
			map[string]any{"name": "role-detail", "path": "api/accounts/roles/<pk>/", "methods": []any{"GET", "PATCH", "DELETE"}, "keys": roleKeys()},
		},
		"catalog": []any{
			map[string]any{"name": "category-list", "path": "api/catalog/categories/", "methods": []any{"GET"},
				"keys": []any{
					map[string]any{"name": "id", "type": "integer", "read_only": true},
					map[string]any{"name": "title", "type": "CharField"},
				}},
		},
	})
}

func catalogWith(apps map[string]any) map[string]any {
	return map[string]any{"applications": map[string]any{"applications": apps}}
}

func roleRecord() map[string]any {
	return map[string]any{
		"id":          5,
		"name":        "Admins",
		"active":      true,
		"category_id": 3,
		"icon":        "https://cdn.example.com/media/admins.png",
	}
}

func categories() []any {
	return []any{
		map[string]any{"id": 3, "title": "Books"},
		map[string]any{"id": 4, "title": "Music"},
	}
}
