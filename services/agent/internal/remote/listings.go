package remote

import (
	"context"
	"net/url"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/internal/listing"
)

type listingsResponse struct {
	Listings []listing.Row `json:"listings"`
}

func listingsPath(d listing.Domain) string {
	return "/listings/" + d.Table()
}

func (c *Client) List(ctx context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error) {
	q := url.Values{}
	if f.AnyStatus {
		q.Set("any_status", "true")
	} else if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.City != "" {
		q.Set("city", f.City)
	}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}

	path := listingsPath(d)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp listingsResponse
	if err := c.do(ctx, "GET", path, nil, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Listings == nil {
		resp.Listings = []listing.Row{}
	}
	return resp.Listings, nil
}

func (c *Client) Insert(ctx context.Context, d listing.Domain, row listing.Row) (listing.Row, error) {
	headers, err := c.writeHeaders(ctx)
	if err != nil {
		return listing.Row{}, err
	}
	var out listing.Row
	err = c.do(ctx, "POST", listingsPath(d), row, &out, headers)
	return out, err
}

func (c *Client) Update(ctx context.Context, d listing.Domain, row listing.Row) (listing.Row, error) {
	headers, err := c.writeHeaders(ctx)
	if err != nil {
		return listing.Row{}, err
	}
	var out listing.Row
	err = c.do(ctx, "PUT", listingsPath(d)+"/"+url.PathEscape(row.ID), row, &out, headers)
	return out, err
}

func (c *Client) Delete(ctx context.Context, d listing.Domain, id string) error {
	headers, err := c.writeHeaders(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, "DELETE", listingsPath(d)+"/"+url.PathEscape(id), nil, nil, headers)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	return err
}
