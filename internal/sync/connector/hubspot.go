package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/platform/logger"
)

const hubspotDefaultBase = "https://api.hubapi.com"

// HubSpot talks to the HubSpot CRM v3 objects API. Pull pagination uses the
// opaque "after" cursor from paging.next.
type HubSpot struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryBase  time.Duration
	log        *logger.Logger
}

// NewHubSpot creates a HubSpot connector. An empty baseURL selects the
// platform default.
func NewHubSpot(baseURL, token string, log *logger.Logger) *HubSpot {
	if baseURL == "" {
		baseURL = hubspotDefaultBase
	}
	return &HubSpot{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		retryBase:  defaultRetryBase,
		log:        log,
	}
}

// Platform identifies this connector.
func (h *HubSpot) Platform() domain.CRM { return domain.CRMHubSpot }

// TestConnection lists a single contact to validate the credential.
func (h *HubSpot) TestConnection(ctx context.Context) error {
	return withRetry(ctx, h.retryBase, func(ctx context.Context) error {
		reqURL := h.baseURL + "/crm/v3/objects/contacts?limit=1"
		resp, err := h.do(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, readError(resp.Body, "hubspot connection check failed"))
		}
		return nil
	})
}

type hubspotProperties struct {
	Firstname      string `json:"firstname,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	SocialHandle   string `json:"social_handle,omitempty"`
	LeadScore      string `json:"lead_score,omitempty"`
	LeadGrade      string `json:"lead_grade,omitempty"`
	LifecycleStage string `json:"lifecyclestage,omitempty"`
}

type hubspotObject struct {
	ID         string            `json:"id"`
	Properties hubspotProperties `json:"properties"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type hubspotListResponse struct {
	Results []hubspotObject `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// PushBatch upserts contacts one record at a time, mirroring the Salesforce
// adapter's failure policy.
func (h *HubSpot) PushBatch(ctx context.Context, contacts []Contact) ([]PushOutcome, error) {
	outcomes := make([]PushOutcome, 0, len(contacts))
	for _, contact := range contacts {
		outcome := h.pushOne(ctx, contact)
		outcomes = append(outcomes, outcome)

		if outcome.Err != nil && !recoverableRecordError(outcome.Err) {
			return outcomes, outcome.Err
		}
	}
	return outcomes, nil
}

func (h *HubSpot) pushOne(ctx context.Context, contact Contact) PushOutcome {
	outcome := PushOutcome{LeadID: contact.LeadID, ExternalID: contact.ExternalID}

	payload := struct {
		Properties hubspotProperties `json:"properties"`
	}{
		Properties: hubspotProperties{
			Firstname:      displayOrUsername(contact),
			Email:          contact.Email,
			Phone:          contact.Phone,
			SocialHandle:   contact.Username,
			LeadScore:      strconv.Itoa(contact.Score),
			LeadGrade:      contact.Grade,
			LifecycleStage: lifecycleStage(contact.Status),
		},
	}

	outcome.Err = withRetry(ctx, h.retryBase, func(ctx context.Context) error {
		method := http.MethodPost
		reqURL := h.baseURL + "/crm/v3/objects/contacts"
		wantStatus := http.StatusCreated
		if contact.ExternalID != "" {
			method = http.MethodPatch
			reqURL += "/" + url.PathEscape(contact.ExternalID)
			wantStatus = http.StatusOK
		}

		resp, err := h.do(ctx, method, reqURL, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != wantStatus {
			return classify(resp.StatusCode, readError(resp.Body, "hubspot upsert failed"))
		}

		var object hubspotObject
		if err := json.NewDecoder(resp.Body).Decode(&object); err != nil {
			return fmt.Errorf("decode upsert response: %w", err)
		}
		outcome.ExternalID = object.ID
		outcome.Created = contact.ExternalID == ""
		return nil
	})
	if outcome.Err != nil {
		h.log.Error("hubspot push failed", "error", outcome.Err, "leadId", contact.LeadID)
	}
	return outcome
}

// PullBatch fetches one page of contacts. The cursor is HubSpot's "after"
// token.
func (h *HubSpot) PullBatch(ctx context.Context, cursor string, limit int) (Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("properties", "firstname,email,phone,social_handle,lifecyclestage")
	if cursor != "" {
		params.Set("after", cursor)
	}
	reqURL := h.baseURL + "/crm/v3/objects/contacts?" + params.Encode()

	var page Page
	err := withRetry(ctx, h.retryBase, func(ctx context.Context) error {
		resp, err := h.do(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, readError(resp.Body, "hubspot list failed"))
		}

		var result hubspotListResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode list response: %w", err)
		}

		contacts := make([]RemoteContact, 0, len(result.Results))
		for _, object := range result.Results {
			contacts = append(contacts, RemoteContact{
				ExternalID:  object.ID,
				Username:    object.Properties.SocialHandle,
				DisplayName: object.Properties.Firstname,
				Email:       object.Properties.Email,
				Phone:       object.Properties.Phone,
				Converted:   object.Properties.LifecycleStage == "customer",
				UpdatedAt:   object.UpdatedAt,
			})
		}

		page = Page{Contacts: contacts}
		if result.Paging != nil && result.Paging.Next.After != "" {
			page.Cursor = result.Paging.Next.After
		}
		return nil
	})
	return page, err
}

// lifecycleStage maps the local lead status onto HubSpot's built-in
// lifecyclestage property.
func lifecycleStage(status string) string {
	switch status {
	case "customer":
		return "customer"
	case "churned":
		return "other"
	case "hot":
		return "salesqualifiedlead"
	case "warm":
		return "marketingqualifiedlead"
	default:
		return "lead"
	}
}

func (h *HubSpot) do(ctx context.Context, method, reqURL string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}
