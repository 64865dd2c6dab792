package spec

import (
	"reflect"
	"strings"
	"testing"
)

const sampleSpec = `openapi: 3.0.0
info:
  title: Pet Store
  version: "1.0.0"
paths:
  /pets/{id}:
    parameters:
      - $ref: '#/components/parameters/Trace'
    get:
      parameters:
        - name: id
          in: path
          required: true
          description: Pet id
          schema:
            type: integer
            description: overwritten
    delete:
      operationId: deletePet
      summary: Delete a pet
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
  /pets:
    summary: path-level summary
    x-internal: true
    get:
      operationId: listPets
      summary: List pets
      description: Returns all pets
      tags: [read]
      parameters:
        - name: limit
          in: query
          schema:
            type: integer
    post:
      operationId: createPet
      tags: [write]
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/NewPet'
    trace:
      operationId: tracePets
  /broken:
    get: '#/not/an/operation'
components:
  parameters:
    Trace:
      name: X-Trace
      in: header
      description: Trace id
      schema:
        type: string
  schemas:
    NewPet:
      type: object
      required: [name]
      properties:
        name:
          type: string
          description: Pet name
        tag:
          type: string
        owner:
          $ref: '#/components/schemas/Owner'
    Owner:
      type: object
      description: Owner record
      properties:
        id:
          type: integer
`

func loadDoc(t *testing.T, text string) Document {
	t.Helper()
	doc, err := Decode(&Raw{Data: []byte(strings.TrimSpace(text)), Location: "spec.yaml"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func findOp(t *testing.T, ops []*Operation, id string) *Operation {
	t.Helper()
	for _, op := range ops {
		if op.ID == id {
			return op
		}
	}
	t.Fatalf("operation %q not found", id)
	return nil
}

func TestCompileAll_OrderAndSkips(t *testing.T) {
	t.Parallel()
	ops := CompileAll(loadDoc(t, sampleSpec))

	var ids []string
	for _, op := range ops {
		ids = append(ids, op.ID)
	}
	want := []string{"listPets", "createPet", "get__pets__id_", "deletePet"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids: got %v, want %v", ids, want)
	}
}

func TestCompile_PathParameterAndSynthesizedID(t *testing.T) {
	t.Parallel()
	op := findOp(t, CompileAll(loadDoc(t, sampleSpec)), "get__pets__id_")

	if op.Method != GET || op.Path != "/pets/{id}" {
		t.Fatalf("method/path: got %s %s", op.Method, op.Path)
	}
	if op.Description != "GET /pets/{id}" {
		t.Errorf("description: got %q", op.Description)
	}
	id := op.InputSchema.Properties["id"]
	if id["type"] != "integer" || id["description"] != "Pet id" {
		t.Errorf("id property: got %v", id)
	}
	if !reflect.DeepEqual(op.InputSchema.Required, []string{"id"}) {
		t.Errorf("required: got %v", op.InputSchema.Required)
	}
	if op.Routes["id"] != ChannelPath || op.Routes["X-Trace"] != ChannelHeader {
		t.Errorf("routes: got %v", op.Routes)
	}
	wantDoc := "GET /pets/{id}\n\nParameters:\n    X-Trace (header): Trace id\n    id (path): Pet id"
	if op.Doc() != wantDoc {
		t.Errorf("doc:\n got %q\nwant %q", op.Doc(), wantDoc)
	}
}

func TestCompile_DescriptionFallbacks(t *testing.T) {
	t.Parallel()
	ops := CompileAll(loadDoc(t, sampleSpec))
	if got := findOp(t, ops, "listPets").Description; got != "Returns all pets" {
		t.Errorf("listPets: got %q", got)
	}
	if got := findOp(t, ops, "deletePet").Description; got != "Delete a pet" {
		t.Errorf("deletePet: got %q", got)
	}
	if got := findOp(t, ops, "createPet").Description; got != "POST /pets" {
		t.Errorf("createPet: got %q", got)
	}
}

func TestCompile_RequestBodyFlattened(t *testing.T) {
	t.Parallel()
	op := findOp(t, CompileAll(loadDoc(t, sampleSpec)), "createPet")

	for _, name := range []string{"name", "tag", "owner"} {
		if op.Routes[name] != ChannelBody {
			t.Errorf("route %s: got %q", name, op.Routes[name])
		}
	}
	if !reflect.DeepEqual(op.InputSchema.Required, []string{"name"}) {
		t.Errorf("required: got %v", op.InputSchema.Required)
	}
	if got := op.InputSchema.Properties["name"]["description"]; got != "Pet name" {
		t.Errorf("name description: got %v", got)
	}
	if got := op.InputSchema.Properties["tag"]["description"]; got != "" {
		t.Errorf("tag description should default to empty, got %v", got)
	}
	owner := op.InputSchema.Properties["owner"]
	if owner["type"] != "object" || owner["description"] != "Owner record" {
		t.Errorf("owner: got %v", owner)
	}
	if _, nested := op.InputSchema.Properties["id"]; nested {
		t.Errorf("nested properties must not be flattened")
	}
	if len(op.BodyParams()) != 3 {
		t.Errorf("body params: got %d", len(op.BodyParams()))
	}
	if !strings.Contains(op.Doc(), "    name: Pet name") {
		t.Errorf("doc missing body listing: %q", op.Doc())
	}
}

func TestCompile_SchemaAndRoutesAgree(t *testing.T) {
	t.Parallel()
	for _, op := range CompileAll(loadDoc(t, sampleSpec)) {
		for _, r := range op.InputSchema.Required {
			if _, ok := op.InputSchema.Properties[r]; !ok {
				t.Errorf("%s: required %q not in properties", op.ID, r)
			}
		}
		if len(op.Routes) != len(op.InputSchema.Properties) {
			t.Errorf("%s: routes %v not total over properties", op.ID, op.Routes)
		}
		for name := range op.InputSchema.Properties {
			if _, ok := op.Routes[name]; !ok {
				t.Errorf("%s: %q has no channel", op.ID, name)
			}
		}
	}
}

func TestCompile_CollisionKeepsFirst(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `openapi: 3.0.0
paths:
  /pets/{name}:
    put:
      parameters:
        - name: name
          in: path
          required: true
          schema:
            type: string
      requestBody:
        content:
          application/json:
            schema:
              properties:
                name:
                  type: string
                age:
                  type: integer
`)
	op := findOp(t, CompileAll(doc), "put__pets__name_")
	if op.Routes["name"] != ChannelPath {
		t.Fatalf("name should stay a path argument, got %q", op.Routes["name"])
	}
	if op.Routes["age"] != ChannelBody {
		t.Fatalf("age: got %q", op.Routes["age"])
	}
	if !reflect.DeepEqual(op.Collisions, []string{"name"}) {
		t.Fatalf("collisions: got %v", op.Collisions)
	}
	if len(op.Params) != 2 {
		t.Fatalf("params: got %d", len(op.Params))
	}
}

func TestCompile_Swagger2Parameters(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `swagger: "2.0"
host: api.example.com
paths:
  /pets:
    post:
      parameters:
        - in: body
          name: body
          schema:
            $ref: '#/definitions/Pet'
        - in: query
          name: dryRun
          type: boolean
  /upload:
    post:
      parameters:
        - in: body
          name: payload
          schema:
            type: array
            items:
              type: string
        - in: formData
          name: file
          type: file
definitions:
  Pet:
    type: object
    required: [name]
    properties:
      name:
        type: string
`)
	ops := CompileAll(doc)

	pets := findOp(t, ops, "post__pets")
	if pets.Routes["name"] != ChannelBody || pets.Routes["dryRun"] != ChannelQuery {
		t.Fatalf("routes: got %v", pets.Routes)
	}
	if _, ok := pets.Routes["body"]; ok {
		t.Fatalf("a body parameter with properties is flattened")
	}
	if got := pets.InputSchema.Properties["dryRun"]; got["type"] != "boolean" {
		t.Fatalf("dryRun schema: got %v", got)
	}

	upload := findOp(t, ops, "post__upload")
	if upload.Routes["payload"] != ChannelBody {
		t.Fatalf("payload: got %q", upload.Routes["payload"])
	}
	if upload.Routes["file"] != Channel("formData") {
		t.Fatalf("file keeps its declared location, got %q", upload.Routes["file"])
	}
	if got := upload.InputSchema.Properties["file"]["format"]; got != "binary" {
		t.Fatalf("file format: got %v", got)
	}
}

func TestCompile_OperationLevelOverridesShared(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `openapi: 3.0.0
paths:
  /items:
    parameters:
      - name: limit
        in: query
        description: shared
    get:
      parameters:
        - name: limit
          in: query
          required: true
          description: own
`)
	op := findOp(t, CompileAll(doc), "get__items")
	if len(op.Params) != 1 {
		t.Fatalf("params: got %d", len(op.Params))
	}
	if !op.Params[0].Required || op.Params[0].Description != "own" {
		t.Fatalf("override not applied: %+v", op.Params[0])
	}
}

func TestCompileAll_Filters(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	ops := CompileAll(doc, WithIncludeTags([]string{"read"}))
	if len(ops) != 1 || ops[0].ID != "listPets" {
		t.Fatalf("include tags: got %d ops", len(ops))
	}

	ops = CompileAll(doc, WithExcludeTags([]string{"write"}))
	for _, op := range ops {
		if op.ID == "createPet" {
			t.Fatalf("exclude tags: createPet should be filtered out")
		}
	}

	ops = CompileAll(doc, WithMethods([]HttpMethod{"DELETE"}), WithPathPatterns([]string{`^/pets/`}))
	if len(ops) != 1 || ops[0].ID != "deletePet" {
		t.Fatalf("method/path filters: got %v", ops)
	}
}

func TestCompileAll_DuplicateIDsAndMissingPaths(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `openapi: 3.0.0
paths:
  /a:
    get:
      operationId: fetch
  /b:
    get:
      operationId: fetch
`)
	ops := CompileAll(doc)
	if len(ops) != 2 || ops[0].ID != "fetch" || ops[1].ID != "fetch_2" {
		t.Fatalf("dedupe: got %v, %v", ops[0].ID, ops[1].ID)
	}

	if ops := CompileAll(Document{"openapi": "3.0.0"}); len(ops) != 0 {
		t.Fatalf("missing paths: got %d ops", len(ops))
	}
	if ops := CompileAll(Document{"paths": "nonsense"}); len(ops) != 0 {
		t.Fatalf("malformed paths: got %d ops", len(ops))
	}
}

func TestDocumentInfo(t *testing.T) {
	t.Parallel()
	info := DocumentInfo(loadDoc(t, sampleSpec))
	if info.Title != "Pet Store" || info.Version != "1.0.0" || info.SpecVersion != "3.0.0" {
		t.Fatalf("info: got %+v", info)
	}

	v2 := DocumentInfo(Document{
		"swagger": "2.0",
		"info":    map[string]any{"title": "Legacy", "version": "0.1"},
		"paths":   map[string]any{},
	})
	if v2.Title != "Legacy" || v2.SpecVersion != "2.0" {
		t.Fatalf("v2 info: got %+v", v2)
	}

	if empty := DocumentInfo(Document{}); empty.Title != "" {
		t.Fatalf("empty info: got %+v", empty)
	}
}
