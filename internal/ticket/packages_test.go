package ticket

import "testing"

func systemNotice(fields ...EmbedField) Message {
	return Message{ID: "1", Role: RoleSystem, Fields: fields}
}

func TestInferPackage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		msgs   []Message
		wantID string
		wantOK bool
	}{
		{
			name:   "type marker",
			msgs:   []Message{systemNotice(EmbedField{Name: "Order Number", Value: "A1"}, EmbedField{Name: "Type", Value: "growth"})},
			wantID: "growth",
			wantOK: true,
		},
		{
			name:   "match by name",
			msgs:   []Message{systemNotice(EmbedField{Name: "package", Value: "Premium"})},
			wantID: "premium",
			wantOK: true,
		},
		{
			name: "quote suppresses",
			msgs: []Message{systemNotice(EmbedField{Name: "Type", Value: "Quote"})},
		},
		{
			name: "unknown plan",
			msgs: []Message{systemNotice(EmbedField{Name: "Type", Value: "gold"})},
		},
		{
			name: "no system notice",
			msgs: []Message{{ID: "1", Role: RoleSupport, Fields: []EmbedField{{Name: "Type", Value: "growth"}}}},
		},
		{
			name: "only first system notice counts",
			msgs: []Message{
				systemNotice(EmbedField{Name: "Project", Value: "x"}),
				systemNotice(EmbedField{Name: "Type", Value: "growth"}),
			},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pkg, ok := InferPackage(tc.msgs, DefaultCatalog)
			if ok != tc.wantOK || pkg.ID != tc.wantID {
				t.Fatalf("want (%q,%v) got (%q,%v)", tc.wantID, tc.wantOK, pkg.ID, ok)
			}
		})
	}
}

func TestIsPackageSelectorRequest(t *testing.T) {
	t.Parallel()

	if !IsPackageSelectorRequest(" /PACKAGES ") {
		t.Fatalf("expected selector command to match")
	}
	if IsPackageSelectorRequest("show /packages") {
		t.Fatalf("embedded command must not match")
	}
}
