package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jun/socialnet/internal/model"
)

// DataService is a typed client for the data service.
type DataService struct {
	c *Client
}

func NewDataService(c *Client) *DataService {
	return &DataService{c: c}
}

// CreateTable reports whether the table was newly created.
func (d *DataService) CreateTable(ctx context.Context, table string) (bool, error) {
	resp, err := d.c.Do(ctx, http.MethodPost, nil, "CreateTableAdmin", table)
	if err != nil {
		return false, err
	}
	if err := d.c.expect(resp, http.StatusCreated, http.StatusAccepted); err != nil {
		return false, err
	}
	return resp.Status == http.StatusCreated, nil
}

// ReadEntityAdmin returns the properties of one entity.
func (d *DataService) ReadEntityAdmin(ctx context.Context, table, partition, row string) (map[string]any, error) {
	return d.readEntity(ctx, "ReadEntityAdmin", table, partition, row)
}

// ReadEntityAuth returns the properties of the entity tok was minted for.
func (d *DataService) ReadEntityAuth(ctx context.Context, table, tok, partition, row string) (map[string]any, error) {
	return d.readEntity(ctx, "ReadEntityAuth", table, tok, partition, row)
}

func (d *DataService) readEntity(ctx context.Context, segments ...string) (map[string]any, error) {
	resp, err := d.c.Do(ctx, http.MethodGet, nil, segments...)
	if err != nil {
		return nil, err
	}
	if err := d.c.expect(resp, http.StatusOK); err != nil {
		return nil, err
	}
	props := map[string]any{}
	if len(resp.Body) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(resp.Body, &props); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return props, nil
}

// UpdateEntityAdmin merges props into an entity, creating it if absent.
func (d *DataService) UpdateEntityAdmin(ctx context.Context, table, partition, row string, props map[string]string) error {
	return d.update(ctx, props, "UpdateEntityAdmin", table, partition, row)
}

// UpdateEntityAuth merges props into the entity tok was minted for.
func (d *DataService) UpdateEntityAuth(ctx context.Context, table, tok, partition, row string, props map[string]string) error {
	return d.update(ctx, props, "UpdateEntityAuth", table, tok, partition, row)
}

func (d *DataService) update(ctx context.Context, props map[string]string, segments ...string) error {
	resp, err := d.c.Do(ctx, http.MethodPut, props, segments...)
	if err != nil {
		return err
	}
	return d.c.expect(resp, http.StatusOK)
}

// AuthService is a typed client for the auth service.
type AuthService struct {
	c *Client
}

func NewAuthService(c *Client) *AuthService {
	return &AuthService{c: c}
}

// GetUpdateData exchanges a password for an update token and the location of
// the user's social record.
func (a *AuthService) GetUpdateData(ctx context.Context, userID, password string) (model.Grant, error) {
	body := map[string]string{model.PropPassword: password}
	resp, err := a.c.Do(ctx, http.MethodGet, body, "GetUpdateData", userID)
	if err != nil {
		return model.Grant{}, err
	}
	if err := a.c.expect(resp, http.StatusOK); err != nil {
		return model.Grant{}, err
	}

	var fields map[string]string
	if err := json.Unmarshal(resp.Body, &fields); err != nil {
		return model.Grant{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	grant := model.Grant{
		Token:         fields["token"],
		DataPartition: fields[model.PropDataPartition],
		DataRow:       fields[model.PropDataRow],
	}
	if len(fields) != 3 || grant.Token == "" || grant.DataPartition == "" || grant.DataRow == "" {
		return model.Grant{}, fmt.Errorf("%w: GetUpdateData returned %d fields", ErrMalformedResponse, len(fields))
	}
	return grant, nil
}

// PushService is a typed client for the push service.
type PushService struct {
	c *Client
}

func NewPushService(c *Client) *PushService {
	return &PushService{c: c}
}

// PushStatus asks the push service to prepend status to every listed friend's feed.
func (p *PushService) PushStatus(ctx context.Context, partition, row, status, friends string) error {
	body := map[string]string{model.PropFriends: friends}
	resp, err := p.c.Do(ctx, http.MethodPost, body, "PushStatus", partition, row, status)
	if err != nil {
		return err
	}
	return p.c.expect(resp, http.StatusOK)
}
