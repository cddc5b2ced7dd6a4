package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	apperrors "cosmo-migrator/internal/shared/errors"
	"cosmo-migrator/internal/shared/logger"
)

const maxErrorBody = 512

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the platform REST API. It reads entities as a source and,
// configured with an id strategy, writes them as a destination: the mint
// strategy uses the regular create endpoints, the preserve strategy the
// "/import" endpoints that keep the given id.
type Client struct {
	base     *url.URL
	http     *http.Client
	strategy repository.IDStrategy
	logger   logger.Logger
}

// NewClient builds a client for the API rooted at baseURL. httpClient carries
// authentication, see the credentials package.
func NewClient(baseURL string, httpClient *http.Client, strategy repository.IDStrategy, log logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid API URL %q", baseURL))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strategy == "" {
		strategy = repository.IDStrategyMint
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{base: base, http: httpClient, strategy: strategy, logger: log.WithComponent("api-client")}, nil
}

// CollectionPath is the REST collection holding entities of kind under scope,
// e.g. "/organizations/o-1/workspaces/w-1/scenarios".
func CollectionPath(kind model.Kind, scope model.Scope) (string, error) {
	esc := url.PathEscape
	org := "/organizations/" + esc(scope.OrganizationID)
	ws := org + "/workspaces/" + esc(scope.WorkspaceID)

	switch kind {
	case model.KindConnector:
		return "/connectors", nil
	case model.KindOrganization:
		return "/organizations", nil
	case model.KindSolution, model.KindDataset, model.KindWorkspace:
		if scope.OrganizationID == "" {
			break
		}
		return org + "/" + model.Collection(kind), nil
	case model.KindScenario:
		if scope.OrganizationID == "" || scope.WorkspaceID == "" {
			break
		}
		return ws + "/scenarios", nil
	case model.KindScenarioRun:
		if scope.OrganizationID == "" || scope.WorkspaceID == "" || scope.ScenarioID == "" {
			break
		}
		return ws + "/scenarios/" + esc(scope.ScenarioID) + "/scenarioruns", nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("%s entities have no API collection", kind))
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("scope %s is incomplete for %s", scope, kind))
}

// ListChildren fetches the collection of kind under scope.
func (c *Client) ListChildren(ctx context.Context, kind model.Kind, scope model.Scope) ([]*model.Entity, error) {
	path, err := CollectionPath(kind, scope)
	if err != nil {
		return nil, err
	}
	var docs []model.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	entities := make([]*model.Entity, 0, len(docs))
	for _, doc := range docs {
		entity, err := model.NewTypedEntity(kind, doc)
		if err != nil {
			c.logger.WithContext(ctx).Warnf("ignoring %s from %s: %v", kind, path, err)
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// GetByID fetches one organization or connector.
func (c *Client) GetByID(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	if !kind.IsGlobal() && kind != model.KindOrganization {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s cannot be fetched without its organization", kind))
	}
	path, err := CollectionPath(kind, model.Scope{})
	if err != nil {
		return nil, err
	}
	var doc model.Record
	err = c.do(ctx, http.MethodGet, path+"/"+url.PathEscape(id), nil, &doc)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %s", kind, id))
	}
	if err != nil {
		return nil, err
	}
	return model.NewTypedEntity(kind, doc)
}

// Create posts entity to the collection of kind under scope and returns the
// id carried by the response.
func (c *Client) Create(ctx context.Context, kind model.Kind, scope model.Scope, entity *model.Entity) (string, error) {
	path, err := CollectionPath(kind, scope)
	if err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}
	body := entity.Fields.Clone()
	if body == nil {
		body = make(model.Record)
	}
	if c.strategy == repository.IDStrategyPreserve {
		path += "/import"
		body[model.IDField] = entity.ID
	} else {
		delete(body, model.IDField)
	}

	var created model.Record
	if err := c.do(ctx, http.MethodPost, path, body, &created); err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}
	newID := created.GetString(model.IDField)
	if newID == "" {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, fmt.Errorf("POST %s returned no id", path))
	}
	return newID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
