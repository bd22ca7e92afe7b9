package injector

import (
	"html"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/models"
)

var weddingData = map[string]interface{}{
	"bride": map[string]interface{}{"name": "Asha", "parents": map[string]interface{}{"father": "Ramesh"}},
	"groom": map[string]interface{}{"name": "Vikram"},
	"event": map[string]interface{}{"guests": 250, "outdoor": true, "venue": nil},
	"tags":  []string{"a", "b"},
}

func TestInject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"simple", "{{bride.name}} weds {{groom.name}}", "Asha weds Vikram"},
		{"whitespace inside braces", "{{  bride.name  }}", "Asha"},
		{"deep path", "Daughter of {{bride.parents.father}}", "Daughter of Ramesh"},
		{"number", "{{event.guests}} guests", "250 guests"},
		{"boolean", "outdoor={{event.outdoor}}", "outdoor=true"},
		{"missing key stays verbatim", "Hosted by {{host.name}}", "Hosted by {{host.name}}"},
		{"null stays verbatim", "At {{event.venue}}", "At {{event.venue}}"},
		{"object stays verbatim", "{{bride}}", "{{bride}}"},
		{"array stays verbatim", "{{tags}}", "{{tags}}"},
		{"no placeholders", "plain text", "plain text"},
		{"malformed braces untouched", "{{bride name}} {bride.name}", "{{bride name}} {bride.name}"},
		{"wildcard characters are literal", "{{bride.*}}", "{{bride.*}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inject(tt.text, weddingData)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInject_NilAndRawData(t *testing.T) {
	got, err := Inject("{{a}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "{{a}}", got)

	got, err = Inject("{{a.b}}", []byte(`{"a":{"b":"raw"}}`))
	require.NoError(t, err)
	assert.Equal(t, "raw", got)
}

func TestInjectEscaped(t *testing.T) {
	data := map[string]interface{}{"note": `<script>alert("x")</script>`}
	got, err := InjectEscaped("<p>{{note}}</p>", data, html.EscapeString)
	require.NoError(t, err)
	assert.Equal(t, `<p>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</p>`, got)
}

func TestPlaceholders(t *testing.T) {
	keys := Placeholders("{{ bride.name }} & {{groom.name}} - {{bride.name}} {{x-y}}")
	assert.Equal(t, []string{"bride.name", "groom.name", "x-y"}, keys)
	assert.Empty(t, Placeholders("none"))
}

func TestInjectTemplate(t *testing.T) {
	tpl := &models.Template{
		Name: "Royal",
		Elements: models.ElementList{
			{ID: "heading", Type: models.ElementText, Content: "{{bride.name}} & {{groom.name}}"},
			{ID: "bride-name", Type: models.ElementText, Editable: true, FieldKey: "bride.name", Content: "Bride"},
			{ID: "photo", Type: models.ElementImage, Editable: true, FieldKey: "photo", Src: "/placeholder.png"},
			{
				ID:   "box",
				Type: models.ElementContainer,
				Children: []models.Element{
					{ID: "footer", Type: models.ElementText, Content: "RSVP {{rsvp.phone}}"},
				},
			},
			{ID: "gallery", Type: models.ElementGallery, Editable: true, FieldKey: "gallery"},
		},
	}

	data := map[string]interface{}{
		"bride":   map[string]string{"name": "Asha"},
		"groom":   map[string]string{"name": "Vikram"},
		"photo":   "https://cdn/p.jpg",
		"gallery": []string{"https://cdn/1.jpg", "", "https://cdn/2.jpg"},
	}

	out, err := InjectTemplate(tpl, data)
	require.NoError(t, err)

	assert.Equal(t, "Asha & Vikram", out.Elements[0].Content)
	assert.Equal(t, "Asha", out.Elements[1].Content)
	assert.Equal(t, "https://cdn/p.jpg", out.Elements[2].Src)
	assert.Equal(t, "RSVP {{rsvp.phone}}", out.Elements[3].Children[0].Content)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, out.Elements[4].Images)

	assert.Equal(t, "{{bride.name}} & {{groom.name}}", tpl.Elements[0].Content, "source template is untouched")
	assert.Equal(t, "/placeholder.png", tpl.Elements[2].Src)
}

func TestInjectTemplate_FieldValuesAreNotReinjected(t *testing.T) {
	tpl := &models.Template{
		Elements: models.ElementList{
			{ID: "groom", Type: models.ElementText, Editable: true, FieldKey: "groom"},
			{ID: "photo", Type: models.ElementImage, Editable: true, FieldKey: "photo"},
			{ID: "blessing", Type: models.ElementText, Editable: true, FieldKey: "blessing", Content: "With love, {{bride}}"},
		},
	}
	data := map[string]interface{}{
		"groom": "{{bride}}",
		"photo": "https://cdn/{{bride}}.jpg",
		"bride": "Asha",
	}

	out, err := InjectTemplate(tpl, data)
	require.NoError(t, err)

	assert.Equal(t, "{{bride}}", out.Elements[0].Content)
	assert.Equal(t, "https://cdn/{{bride}}.jpg", out.Elements[1].Src)
	assert.Equal(t, "With love, Asha", out.Elements[2].Content, "authored text without an answer is still injected")
}
