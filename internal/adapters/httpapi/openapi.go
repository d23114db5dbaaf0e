package httpapi

func op(summary string) map[string]any {
	return map[string]any{"summary": summary}
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "precheck",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
		},
		"security": []map[string]any{{"apiKey": []string{}}},
		"paths": map[string]any{
			"/v1/rules/versions": map[string]any{
				"get":  op("List rule versions visible to the tenant"),
				"post": op("Create a tenant rule version"),
			},
			"/v1/rules/runs": map[string]any{
				"get":  op("List rule runs"),
				"post": op("Trigger a rule run"),
			},
			"/v1/rules/runs/{id}": map[string]any{"get": op("Get rule run")},
			"/v1/rules/results":   map[string]any{"get": op("List rule results")},
			"/v1/exceptions": map[string]any{
				"get":  op("List exceptions"),
				"post": op("Open an exception for a rule result"),
			},
			"/v1/exceptions/{id}": map[string]any{
				"get":   op("Get exception"),
				"patch": op("Update or approve an exception"),
			},
			"/v1/exceptions/{id}/memos": map[string]any{
				"get":  op("List exception memos"),
				"post": op("Add an exception memo"),
			},
			"/v1/evidence/packets": map[string]any{
				"get":  op("List evidence packets"),
				"post": op("Build an evidence packet"),
			},
			"/v1/evidence/packets/{id}":        map[string]any{"get": op("Get evidence packet")},
			"/v1/evidence/packets/{id}/verify": map[string]any{"get": op("Verify evidence packet hash")},
			"/v1/import/students/csv":          map[string]any{"post": op("Import students from CSV")},
			"/v1/connectors/powerschool/sync":  map[string]any{"post": op("Queue a PowerSchool sync")},
			"/v1/exports/exceptions.csv":       map[string]any{"get": op("Export exceptions as CSV")},
			"/v1/readiness":                    map[string]any{"get": op("Readiness scores per school")},
			"/v1/schools":                      map[string]any{"get": op("List schools")},
			"/v1/students": map[string]any{
				"get":  op("List students"),
				"post": op("Create or update a student"),
			},
			"/v1/users": map[string]any{
				"get":  op("List users"),
				"post": op("Create a user"),
			},
			"/v1/audit": map[string]any{"get": op("List audit entries")},
		},
	}
}
