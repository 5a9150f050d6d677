package main

import (
	"context"
	"sort"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/protocol"
)

// staticResources is an in-memory protocol.ResourceHandler serving a fixed
// set of documents under the "doc://" scheme, enough to exercise the
// workflow engine's pre/post-tool resource fetch steps (spec.md §4.G)
// without standing up a real document store.
type staticResources struct {
	docs map[string]string
}

func newStaticResources() *staticResources {
	return &staticResources{
		docs: map[string]string{
			"doc://welcome":  "This server demonstrates the JSON-RPC agent/tool protocol core end-to-end.",
			"doc://glossary": "binding: a workflow step's stored output, referenced by later steps via StepOutput.",
		},
	}
}

func (r *staticResources) Read(ctx context.Context, uri string, extra protocol.Extra) ([]protocol.ResourceContent, error) {
	text, ok := r.docs[uri]
	if !ok {
		return nil, errs.New(errs.CodeNotFound).Messagef("unknown resource %q", uri).Build()
	}
	return []protocol.ResourceContent{{URI: uri, Text: text}}, nil
}

func (r *staticResources) List(ctx context.Context, cursor string, extra protocol.Extra) (protocol.ResourcePage, error) {
	uris := make([]string, 0, len(r.docs))
	for uri := range r.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return protocol.ResourcePage{Resources: uris}, nil
}

var _ protocol.ResourceHandler = (*staticResources)(nil)
