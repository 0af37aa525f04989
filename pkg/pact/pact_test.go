package pact

import (
	"testing"

	"github.com/form3tech-oss/pact-kit/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func userPact(spec Specification) *Pact {
	p := New("User Web", "User API", WithSpecification(spec))
	p.AddInteraction().
		Given("a user exists").
		UponReceiving("a request for a user").
		WithRequest(Request{Method: "GET", Path: "/users/1"}).
		WillRespondWith(Response{
			Status:  200,
			Headers: map[string]any{"Content-Type": "application/json"},
			Body: map[string]any{
				"id":   match.Like(1),
				"name": match.Regex("[a-zA-Z]+", "Alice"),
			},
		})
	return p
}

func TestEndToEndHTTPInteraction(t *testing.T) {
	p := userPact(V3)

	data, err := Marshal(p)
	require.NoError(t, err)

	doc := gjson.ParseBytes(data)
	assert.Equal(t, "a user exists", doc.Get("interactions.0.providerStates.0.name").String())
	assert.Equal(t, "type", doc.Get(`interactions.0.response.matchingRules.body.$\.id.matchers.0.match`).String())
	assert.Equal(t, "regex", doc.Get(`interactions.0.response.matchingRules.body.$\.name.matchers.0.match`).String())
	assert.Equal(t, int64(1), doc.Get("interactions.0.response.body.id").Int())

	integration, err := match.IntegrationJSON(p.HTTPInteractions()[0].Response.Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pact:matcher:type": "type", "value": 1}, integration.(map[string]any)["id"])

	generated, err := match.Generate(p.HTTPInteractions()[0].Response.Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1, "name": "Alice"}, generated)
}

func TestRoundTrip(t *testing.T) {
	for _, spec := range []Specification{V2, V3, V4} {
		t.Run(string(spec), func(t *testing.T) {
			p := New("consumer", "provider", WithSpecification(spec), WithMetadata("team", "payments"))
			p.AddInteraction().
				Given("an account exists").
				UponReceiving("a search").
				WithRequest(Request{
					Method:  "GET",
					Path:    match.Regex(`/accounts/\d+`, "/accounts/42"),
					Query:   map[string]any{"q": "open", "page": match.Regex(`\d+`, "1")},
					Headers: map[string]any{"Accept": "application/json"},
				}).
				WillRespondWith(Response{
					Status:  200,
					Headers: map[string]any{"Content-Type": "application/json"},
					Body: map[string]any{
						"accounts": match.EachLike(map[string]any{
							"id":      match.Integer(42),
							"balance": match.Decimal(10.5),
							"open":    match.Boolean(true),
						}, 1),
						"total": 1,
					},
				})
			p.AddInteraction().
				UponReceiving("a deletion").
				WithRequest(Request{Method: "DELETE", Path: "/accounts/42"}).
				WillRespondWith(Response{Status: 204})

			first, err := Marshal(p)
			require.NoError(t, err)

			parsed, err := Parse(first)
			require.NoError(t, err)
			assert.Equal(t, spec, parsed.Specification)
			assert.Equal(t, "payments", parsed.Metadata["team"])

			require.Len(t, parsed.Interactions(), 2)
			for n, i := range parsed.Interactions() {
				assert.Equal(t, p.Interactions()[n].Base().Description, i.Base().Description)
				assert.Equal(t, p.Interactions()[n].Base().ProviderStates, i.Base().ProviderStates)
			}

			search := parsed.HTTPInteractions()[0]
			assert.IsType(t, match.RegexMatcher{}, search.Request.Path)
			assert.IsType(t, match.RegexMatcher{}, search.Request.Query["page"])
			assert.Equal(t, "open", search.Request.Query["q"])
			body := search.Response.Body.(map[string]any)
			require.IsType(t, match.EachLikeMatcher{}, body["accounts"])
			template := body["accounts"].(match.EachLikeMatcher).Template.(map[string]any)
			assert.IsType(t, match.IntegerMatcher{}, template["id"])
			assert.IsType(t, match.BooleanMatcher{}, template["open"])

			second, err := Marshal(parsed)
			require.NoError(t, err)
			assert.JSONEq(t, string(first), string(second))
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	for _, spec := range []Specification{V3, V4} {
		t.Run(string(spec), func(t *testing.T) {
			p := New("consumer", "provider", WithSpecification(spec))
			p.AddMessage().
				GivenWithParams("an order", map[string]any{"id": 7}).
				ExpectsToReceive("an order created event").
				WithContent(map[string]any{"orderId": match.Integer(7), "status": match.Regex("created|paid", "created")}).
				WithMetadata(map[string]any{"queue": "orders"})

			first, err := Marshal(p)
			require.NoError(t, err)
			if spec == V3 {
				assert.True(t, gjson.GetBytes(first, "messages.0").Exists())
				assert.False(t, gjson.GetBytes(first, "interactions").Exists())
			} else {
				assert.Equal(t, string(KindAsyncMessage), gjson.GetBytes(first, "interactions.0.type").String())
			}

			parsed, err := Parse(first)
			require.NoError(t, err)
			require.Len(t, parsed.Interactions(), 1)
			m, ok := parsed.Interactions()[0].(*AsyncMessage)
			require.True(t, ok)
			assert.Equal(t, "an order created event", m.Description)
			assert.Equal(t, "orders", m.Contents.Metadata["queue"])
			assert.Equal(t, int64(7), m.ProviderStates[0].Params["id"])
			assert.IsType(t, match.IntegerMatcher{}, m.Contents.Content.(map[string]any)["orderId"])

			second, err := Marshal(parsed)
			require.NoError(t, err)
			assert.JSONEq(t, string(first), string(second))
		})
	}
}

func TestV3MessageContentTypeDoesNotLeakIntoMetadata(t *testing.T) {
	p := New("consumer", "provider", WithSpecification(V3))
	p.AddMessage().
		ExpectsToReceive("a text event").
		WithContent("hello").
		WithContentType("text/plain").
		WithMetadata(map[string]any{"queue": "events"})

	first, err := Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gjson.GetBytes(first, "messages.0.metadata.contentType").String())

	parsed, err := Parse(first)
	require.NoError(t, err)
	m := parsed.Interactions()[0].(*AsyncMessage)
	assert.Equal(t, "text/plain", m.Contents.ContentType)
	assert.Equal(t, map[string]any{"queue": "events"}, m.Contents.Metadata)

	second, err := Marshal(parsed)
	require.NoError(t, err)
	reparsed, err := Parse(second)
	require.NoError(t, err)
	assert.Equal(t, m.Contents.Metadata, reparsed.Interactions()[0].(*AsyncMessage).Contents.Metadata)
	assert.JSONEq(t, string(first), string(second))
}

func TestSynchronousMessageRoundTrip(t *testing.T) {
	p := New("consumer", "provider", WithSpecification(V4))
	p.AddSynchronousMessage().
		Given("a price list").
		UponReceiving("a price query").
		WithRequest(MessageContents{Content: map[string]any{"sku": "A1"}}).
		WillRespondWith(MessageContents{Content: map[string]any{"price": match.Decimal(9.99)}}).
		WillRespondWith(MessageContents{Content: "out of stock", ContentType: "text/plain"})

	first, err := Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.GetBytes(first, "interactions.0.response.#").Int())

	parsed, err := Parse(first)
	require.NoError(t, err)
	m, ok := parsed.Interactions()[0].(*SyncMessage)
	require.True(t, ok)
	require.Len(t, m.Responses, 2)
	assert.Equal(t, "out of stock", m.Responses[1].Content)
	assert.Equal(t, "text/plain", m.Responses[1].ContentType)

	second, err := Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestGeneratorsSurviveRoundTrip(t *testing.T) {
	p := New("consumer", "provider", WithSpecification(V3))
	p.AddInteraction().
		UponReceiving("a request for an order").
		WithRequest(Request{Method: "GET", Path: "/orders/1"}).
		WillRespondWith(Response{
			Status: 200,
			Body: map[string]any{
				"name":  match.AnyString(10),
				"hash":  match.AnyHexadecimal(4),
				"self":  match.MockServerURL(`^http://.*/orders/\d+$`, "http://localhost:1234/orders/1"),
				"lines": match.ArrayContaining(map[string]any{"sku": match.Like("A1")}),
			},
		})

	first, err := Marshal(p)
	require.NoError(t, err)
	gens := gjson.GetBytes(first, "interactions.0.response.generators.body")
	assert.Equal(t, "RandomString", gens.Get(`$\.name.type`).String())
	assert.Equal(t, int64(10), gens.Get(`$\.name.size`).Int())
	assert.Equal(t, "RandomHexadecimal", gens.Get(`$\.hash.type`).String())
	assert.Equal(t, "MockServerURL", gens.Get(`$\.self.type`).String())
	assert.Equal(t, "arrayContains", gjson.GetBytes(first, `interactions.0.response.matchingRules.body.$\.lines.matchers.0.match`).String())

	parsed, err := Parse(first)
	require.NoError(t, err)
	body := parsed.HTTPInteractions()[0].Response.Body.(map[string]any)
	name := body["name"].(match.TypeMatcher)
	require.NotNil(t, name.Generator)
	assert.Equal(t, match.GenRandomString, name.Generator.Type)
	hash := body["hash"].(match.RegexMatcher)
	require.NotNil(t, hash.Generator)
	assert.Equal(t, match.GenRandomHexadecimal, hash.Generator.Type)
	assert.Equal(t, "http://localhost:1234/orders/1", *body["self"].(match.RegexMatcher).Example)
	assert.Equal(t, map[string]any{"sku": match.TypeMatcher{Value: "A1"}}, body["lines"].(match.ArrayContainsMatcher).Variants[0])

	second, err := Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t,
		gjson.GetBytes(first, "interactions.0.response.generators").Raw,
		gjson.GetBytes(second, "interactions.0.response.generators").Raw)
	assert.JSONEq(t,
		gjson.GetBytes(first, "interactions.0.response.matchingRules").Raw,
		gjson.GetBytes(second, "interactions.0.response.matchingRules").Raw)
}

func TestBinaryBody(t *testing.T) {
	p := New("consumer", "provider", WithSpecification(V4))
	p.AddInteraction().
		UponReceiving("an image upload").
		WithRequest(Request{
			Method:  "POST",
			Path:    "/images",
			Headers: map[string]any{"Content-Type": "image/png"},
			Body:    []byte{0x89, 0x50, 0x4e, 0x47},
		}).
		WillRespondWith(Response{Status: 201})

	data, err := Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "base64", gjson.GetBytes(data, "interactions.0.request.body.encoded").String())

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, parsed.HTTPInteractions()[0].Request.Body)

	p.Specification = V3
	_, err = Marshal(p)
	assert.Error(t, err)
}

func TestV2Limits(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Pact)
	}{
		{
			name: "messages",
			build: func(p *Pact) {
				p.AddMessage().ExpectsToReceive("an event").WithContent(map[string]any{"a": 1})
			},
		},
		{
			name: "several provider states",
			build: func(p *Pact) {
				p.AddInteraction().Given("one").Given("two").UponReceiving("a request").
					WithRequest(Request{Method: "GET", Path: "/"}).WillRespondWith(Response{Status: 200})
			},
		},
		{
			name: "provider state params",
			build: func(p *Pact) {
				p.AddInteraction().GivenWithParams("one", map[string]any{"id": 1}).UponReceiving("a request").
					WithRequest(Request{Method: "GET", Path: "/"}).WillRespondWith(Response{Status: 200})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("consumer", "provider", WithSpecification(V2))
			tt.build(p)
			_, err := Marshal(p)
			var validation *ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Pact
		problem string
	}{
		{
			name:    "missing consumer",
			build:   func() *Pact { return New("", "provider") },
			problem: "consumer name is required",
		},
		{
			name: "missing response",
			build: func() *Pact {
				p := New("consumer", "provider")
				p.AddInteraction().UponReceiving("a request").WithRequest(Request{Method: "GET", Path: "/"})
				return p
			},
			problem: `interaction "a request" is missing response`,
		},
		{
			name: "duplicate interaction",
			build: func() *Pact {
				p := New("consumer", "provider")
				for i := 0; i < 2; i++ {
					p.AddInteraction().Given("state").UponReceiving("a request").
						WithRequest(Request{Method: "GET", Path: "/"}).WillRespondWith(Response{Status: 200})
				}
				return p
			},
			problem: `interaction "a request" is defined more than once for the same provider states`,
		},
		{
			name: "plugins before V4",
			build: func() *Pact {
				return New("consumer", "provider").UsingPlugin("protobuf", "0.3.0")
			},
			problem: "plugins require specification 4.0, pact uses 3.0.0",
		},
		{
			name: "undeclared plugin",
			build: func() *Pact {
				p := New("consumer", "provider", WithSpecification(V4))
				p.AddMessage().ExpectsToReceive("an event").WithContent("x").
					WithPluginConfiguration("protobuf", map[string]any{"message": "Event"})
				return p
			},
			problem: `interaction "an event" configures undeclared plugin "protobuf"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Contains(t, validation.Problems, tt.problem)
		})
	}
}

func TestSameDescriptionWithDifferentStatesIsValid(t *testing.T) {
	p := New("consumer", "provider")
	p.AddInteraction().Given("a user exists").UponReceiving("a request for a user").
		WithRequest(Request{Method: "GET", Path: "/users/1"}).WillRespondWith(Response{Status: 200})
	p.AddInteraction().Given("no users").UponReceiving("a request for a user").
		WithRequest(Request{Method: "GET", Path: "/users/1"}).WillRespondWith(Response{Status: 404})

	assert.NoError(t, p.Validate())
}

func TestExplicitBuilderKeepsOrder(t *testing.T) {
	p := New("consumer", "provider")
	p.AddInteraction().UponReceiving("first")
	p.AddMessage().ExpectsToReceive("second")
	p.AddInteraction().UponReceiving("third")

	var descriptions []string
	for _, i := range p.Interactions() {
		descriptions = append(descriptions, i.Base().Description)
	}
	assert.Equal(t, []string{"first", "second", "third"}, descriptions)
}

func TestLegacyBuilderSealsCompleteInteractions(t *testing.T) {
	p := New("consumer", "provider")
	Legacy(p).
		Given("A").
		UponReceiving("B").
		WithRequest(Request{Method: "GET", Path: "/b"}).
		WillRespondWith(Response{Status: 200}).
		Given("C").
		UponReceiving("D").
		WithRequest(Request{Method: "GET", Path: "/d"}).
		WillRespondWith(Response{Status: 200})

	interactions := p.Interactions()
	require.Len(t, interactions, 2)
	assert.Equal(t, "D", interactions[0].Base().Description)
	assert.Equal(t, []ProviderState{{Name: "C"}}, interactions[0].Base().ProviderStates)
	assert.Equal(t, "B", interactions[1].Base().Description)
	assert.Equal(t, []ProviderState{{Name: "A"}}, interactions[1].Base().ProviderStates)
}

func TestLegacyBuilderMessages(t *testing.T) {
	p := New("consumer", "provider")
	Legacy(p).
		ExpectsToReceive("first event").
		WithContent(map[string]any{"n": 1}).
		WithMetadata(map[string]any{"queue": "a"}).
		ExpectsToReceive("second event").
		WithContent("plain", "text/plain")

	interactions := p.Interactions()
	require.Len(t, interactions, 2)
	second, ok := interactions[0].(*AsyncMessage)
	require.True(t, ok)
	assert.Equal(t, "second event", second.Description)
	assert.Equal(t, "text/plain", second.Contents.ContentType)
	assert.Equal(t, "first event", interactions[1].Base().Description)
}

func TestLegacyBuilderSeal(t *testing.T) {
	p := New("consumer", "provider")
	Legacy(p).UponReceiving("incomplete").Seal().UponReceiving("next")

	err := p.Validate()
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Problems, `interaction "incomplete" is missing request, response`)
}

func TestParseSpecification(t *testing.T) {
	tests := []struct {
		in   string
		want Specification
	}{
		{in: "1.1.0", want: V2},
		{in: "2.0.0", want: V2},
		{in: "3.0.0", want: V3},
		{in: "v4", want: V4},
		{in: "4.0", want: V4},
	}
	for _, tt := range tests {
		got, err := ParseSpecification(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSpecification("5.0.0")
	assert.Error(t, err)
	_, err = ParseSpecification("latest")
	assert.Error(t, err)
}

func TestParseLegacySpellings(t *testing.T) {
	doc := `{
	  "consumer": {"name": "consumer"},
	  "provider": {"name": "provider"},
	  "interactions": [{
	    "description": "a request",
	    "providerState": "a state",
	    "request": {"method": "GET", "path": "/items", "query": "a=1&a=2"},
	    "response": {
	      "status": 200,
	      "body": {"items": [{"id": 1}]},
	      "matchingRules": {"$.body.items": {"min": 1}, "$.body.items[*].id": {"match": "type"}}
	    }
	  }],
	  "metadata": {"pact-specification": {"version": "2.0.0"}}
	}`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, V2, p.Specification)

	i := p.HTTPInteractions()[0]
	assert.Equal(t, []ProviderState{{Name: "a state"}}, i.ProviderStates)
	assert.Equal(t, []any{"1", "2"}, i.Request.Query["a"])
	items := i.Response.Body.(map[string]any)["items"]
	require.IsType(t, match.EachLikeMatcher{}, items)
	assert.IsType(t, match.TypeMatcher{}, items.(match.EachLikeMatcher).Template.(map[string]any)["id"])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "user_web-user_api.json", FileName("User Web", "User API"))
}
