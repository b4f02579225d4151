package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ScriptDetails are the properties of a Script instance
type ScriptDetails struct {
	Enabled bool   `json:"Enabled"`
	Source  string `json:"Source"`
}

// Instance is an engine instance inside a place
type Instance struct {
	ID          string
	Name        string
	ParentID    string
	HasChildren bool
	// Type is the class of the instance when Roblox exposes its details
	Type string
	// Script is set for Script instances
	Script *ScriptDetails

	Place *Place
}

func (i *Instance) String() string {
	return fmt.Sprintf("Instance(%q, name=%q)", i.ID, i.Name)
}

// Instance returns a handle for an engine instance of the place. Use "root"
// for the DataModel.
func (p *Place) Instance(id string) *Instance {
	return &Instance{ID: id, Place: p}
}

func (i *Instance) path() string {
	return fmt.Sprintf("/universes/%d/places/%d/instances/%s", i.Place.Experience.ID, i.Place.ID, i.ID)
}

type rawInstance struct {
	HasChildren    bool `json:"hasChildren"`
	EngineInstance struct {
		ID      string                     `json:"Id"`
		Name    string                     `json:"Name"`
		Parent  string                     `json:"Parent"`
		Details map[string]json.RawMessage `json:"Details"`
	} `json:"engineInstance"`
}

func (p *Place) decodeInstance(raw rawInstance) (*Instance, error) {
	inst := &Instance{
		ID:          raw.EngineInstance.ID,
		Name:        raw.EngineInstance.Name,
		ParentID:    raw.EngineInstance.Parent,
		HasChildren: raw.HasChildren,
		Place:       p,
	}
	for class, details := range raw.EngineInstance.Details {
		inst.Type = class
		if class == "Script" {
			var script ScriptDetails
			if err := json.Unmarshal(details, &script); err != nil {
				return nil, fmt.Errorf("failed to decode script details: %w", err)
			}
			inst.Script = &script
		}
	}
	return inst, nil
}

type operationPath struct {
	Path string `json:"path"`
}

func (i *Instance) startOperation(ctx context.Context, req *Request) (string, error) {
	resp, err := i.Place.client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	var data operationPath
	if err := resp.Decode(&data); err != nil {
		return "", err
	}
	return "/" + data.Path, nil
}

// ListChildren starts listing the instance's direct children
func (i *Instance) ListChildren(ctx context.Context) (*Operation[[]*Instance], error) {
	path, err := i.startOperation(ctx, &Request{
		Method:         http.MethodGet,
		Path:           i.path() + ":listChildren",
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	return newOperation(i.Place.client, path, func(raw json.RawMessage) ([]*Instance, error) {
		var data struct {
			Instances []rawInstance `json:"instances"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode instances: %w", err)
		}
		children := make([]*Instance, 0, len(data.Instances))
		for _, r := range data.Instances {
			child, err := i.Place.decodeInstance(r)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return children, nil
	}), nil
}

// UpdateScriptSource replaces the source of a Script instance
func (i *Instance) UpdateScriptSource(ctx context.Context, source string) (*Operation[bool], error) {
	path, err := i.startOperation(ctx, &Request{
		Method: http.MethodPatch,
		Path:   i.path(),
		JSON: map[string]any{
			"engineInstance": map[string]any{
				"Details": map[string]any{
					"Script": map[string]string{"Source": source},
				},
			},
		},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return newOperation(i.Place.client, path, func(json.RawMessage) (bool, error) { return true, nil }), nil
}
