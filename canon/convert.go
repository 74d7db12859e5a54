package canon

// FromMap builds an Entity from untyped structured data, as produced by
// JSON decoding of generation output. Unknown shapes are tolerated here;
// structural enforcement belongs to the schema layer.
func FromMap(data map[string]any, templateID string) *Entity {
	e := &Entity{
		Metadata: Metadata{TemplateID: templateID},
		Fields:   make(map[string]any),
	}
	for key, value := range data {
		switch key {
		case "id":
			if s, ok := value.(string); ok {
				e.Metadata.ID = s
			}
		case "name":
			if s, ok := value.(string); ok {
				e.Name = s
			}
		case "title":
			if s, ok := value.(string); ok && e.Name == "" {
				e.Name = s
			}
		case "notes":
			if s, ok := value.(string); ok {
				e.Notes = s
			}
		case "claims":
			e.Claims = claimsFromAny(value)
		case "relationships":
			e.Relationships = relationshipsFromAny(value)
		case "metadata":
			if m, ok := value.(map[string]any); ok {
				if s, ok := m["id"].(string); ok && e.Metadata.ID == "" {
					e.Metadata.ID = s
				}
				if s, ok := m["entity_type"].(string); ok {
					e.Metadata.EntityType = s
				}
				if s, ok := m["status"].(string); ok {
					e.Metadata.Status = Status(s)
				}
			}
		default:
			e.Fields[key] = value
		}
	}
	return e
}

func claimsFromAny(value any) []Claim {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var claims []Claim
	for _, item := range items {
		switch v := item.(type) {
		case string:
			claims = append(claims, Claim{Text: v})
		case map[string]any:
			claim := Claim{}
			if s, ok := v["text"].(string); ok {
				claim.Text = s
			}
			if refs, ok := v["refs"].([]any); ok {
				for _, ref := range refs {
					if s, ok := ref.(string); ok {
						claim.Refs = append(claim.Refs, s)
					}
				}
			}
			if claim.Text != "" {
				claims = append(claims, claim)
			}
		}
	}
	return claims
}

func relationshipsFromAny(value any) []Relationship {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var rels []Relationship
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rel := Relationship{}
		if s, ok := m["target_id"].(string); ok {
			rel.TargetID = s
		}
		if s, ok := m["type"].(string); ok {
			rel.Type = s
		}
		if s, ok := m["description"].(string); ok {
			rel.Description = s
		}
		if rel.TargetID != "" {
			rels = append(rels, rel)
		}
	}
	return rels
}
