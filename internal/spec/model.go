package spec

import "strings"

// Compiled operation model shared by the invoker, the toolbox and the emitters.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	PATCH   HttpMethod = "patch"
	DELETE  HttpMethod = "delete"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
)

// Methods lists the operation keys compiled under a path item, in compile order.
var Methods = []HttpMethod{GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS}

// Channel is the transmission location of an argument.
type Channel string

const (
	ChannelPath   Channel = "path"
	ChannelQuery  Channel = "query"
	ChannelHeader Channel = "header"
	ChannelCookie Channel = "cookie"
	ChannelBody   Channel = "body"
)

// Parameter is one argument of a compiled operation. Parameters declared in a
// body schema carry ChannelBody.
type Parameter struct {
	Name        string         `json:"name"`
	In          Channel        `json:"in"`
	Required    bool           `json:"required"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// InputSchema is the JSON-Schema shaped argument description presented to callers.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]map[string]any `json:"properties"`
	Required   []string                  `json:"required"`
}

// Operation is the immutable result of compiling one (path, method) pair.
type Operation struct {
	ID          string      `json:"name"`
	Method      HttpMethod  `json:"method"`
	Path        string      `json:"path"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags,omitempty"`
	Params      []Parameter `json:"parameters"`
	InputSchema InputSchema `json:"input_schema"`
	// Routes maps every InputSchema property to its channel.
	Routes map[string]Channel `json:"routes"`
	// Collisions names arguments dropped because an earlier argument
	// already claimed the name.
	Collisions []string `json:"collisions,omitempty"`

	docs []string
}

// Doc returns the description followed by a human-readable parameter listing.
func (o *Operation) Doc() string {
	return o.Description + "\n\nParameters:\n" + strings.Join(o.docs, "\n")
}

// BodyParams returns the parameters routed to the JSON body.
func (o *Operation) BodyParams() []Parameter {
	var out []Parameter
	for _, p := range o.Params {
		if p.In == ChannelBody {
			out = append(out, p)
		}
	}
	return out
}
