package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/platform/logger"
)

const (
	salesforceAPIVersion  = "v59.0"
	salesforceDefaultBase = "https://login.salesforce.com"
)

// Salesforce talks to the Salesforce REST API using the Contact sobject for
// writes and SOQL for paged reads.
type Salesforce struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryBase  time.Duration
	log        *logger.Logger
}

// NewSalesforce creates a Salesforce connector. An empty baseURL selects the
// platform default.
func NewSalesforce(baseURL, token string, log *logger.Logger) *Salesforce {
	if baseURL == "" {
		baseURL = salesforceDefaultBase
	}
	return &Salesforce{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		retryBase:  defaultRetryBase,
		log:        log,
	}
}

// Platform identifies this connector.
func (s *Salesforce) Platform() domain.CRM { return domain.CRMSalesforce }

// TestConnection issues a cheap limits read to validate the credential.
func (s *Salesforce) TestConnection(ctx context.Context) error {
	return withRetry(ctx, s.retryBase, func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/services/data/%s/limits", s.baseURL, salesforceAPIVersion)
		resp, err := s.do(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, readError(resp.Body, "salesforce limits check failed"))
		}
		return nil
	})
}

type salesforceContact struct {
	LastName     string `json:"LastName"`
	Email        string `json:"Email,omitempty"`
	Phone        string `json:"Phone,omitempty"`
	Description  string `json:"Description,omitempty"`
	LeadSource   string `json:"LeadSource,omitempty"`
	LeadScoreC   int    `json:"Lead_Score__c"`
	LeadGradeC   string `json:"Lead_Grade__c,omitempty"`
	LeadStatusC  string `json:"Lead_Status__c,omitempty"`
	SocialHandle string `json:"Social_Handle__c,omitempty"`
}

type salesforceCreateResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// PushBatch upserts contacts one record at a time. Validation failures are
// record outcomes; an auth failure aborts the remainder of the batch.
func (s *Salesforce) PushBatch(ctx context.Context, contacts []Contact) ([]PushOutcome, error) {
	outcomes := make([]PushOutcome, 0, len(contacts))
	for _, contact := range contacts {
		outcome := s.pushOne(ctx, contact)
		outcomes = append(outcomes, outcome)

		if outcome.Err != nil && !recoverableRecordError(outcome.Err) {
			return outcomes, outcome.Err
		}
	}
	return outcomes, nil
}

func (s *Salesforce) pushOne(ctx context.Context, contact Contact) PushOutcome {
	outcome := PushOutcome{LeadID: contact.LeadID, ExternalID: contact.ExternalID}

	payload := salesforceContact{
		LastName:     displayOrUsername(contact),
		Email:        contact.Email,
		Phone:        contact.Phone,
		LeadSource:   "Social",
		LeadScoreC:   contact.Score,
		LeadGradeC:   contact.Grade,
		LeadStatusC:  contact.Status,
		SocialHandle: contact.Username,
	}

	outcome.Err = withRetry(ctx, s.retryBase, func(ctx context.Context) error {
		if contact.ExternalID == "" {
			reqURL := fmt.Sprintf("%s/services/data/%s/sobjects/Contact", s.baseURL, salesforceAPIVersion)
			resp, err := s.do(ctx, http.MethodPost, reqURL, payload)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				return classify(resp.StatusCode, readError(resp.Body, "salesforce create failed"))
			}

			var created salesforceCreateResponse
			if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
				return fmt.Errorf("decode create response: %w", err)
			}
			outcome.ExternalID = created.ID
			outcome.Created = true
			return nil
		}

		reqURL := fmt.Sprintf("%s/services/data/%s/sobjects/Contact/%s",
			s.baseURL, salesforceAPIVersion, url.PathEscape(contact.ExternalID))
		resp, err := s.do(ctx, http.MethodPatch, reqURL, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, readError(resp.Body, "salesforce update failed"))
		}
		return nil
	})
	if outcome.Err != nil {
		s.log.Error("salesforce push failed", "error", outcome.Err, "leadId", contact.LeadID)
	}
	return outcome
}

type salesforceQueryResponse struct {
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []struct {
		ID               string  `json:"Id"`
		LastName         string  `json:"LastName"`
		Email            *string `json:"Email"`
		Phone            *string `json:"Phone"`
		SocialHandle     *string `json:"Social_Handle__c"`
		ConvertedC       bool    `json:"Converted__c"`
		LastModifiedDate string  `json:"LastModifiedDate"`
	} `json:"records"`
}

// PullBatch pages through Contacts with SOQL. The cursor is Salesforce's
// nextRecordsUrl, opaque to callers.
func (s *Salesforce) PullBatch(ctx context.Context, cursor string, limit int) (Page, error) {
	var reqURL string
	if cursor != "" {
		reqURL = s.baseURL + cursor
	} else {
		soql := fmt.Sprintf(
			"SELECT Id, LastName, Email, Phone, Social_Handle__c, Converted__c, LastModifiedDate FROM Contact ORDER BY LastModifiedDate LIMIT %d",
			limit)
		reqURL = fmt.Sprintf("%s/services/data/%s/query?q=%s", s.baseURL, salesforceAPIVersion, url.QueryEscape(soql))
	}

	var page Page
	err := withRetry(ctx, s.retryBase, func(ctx context.Context) error {
		resp, err := s.do(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, readError(resp.Body, "salesforce query failed"))
		}

		var result salesforceQueryResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode query response: %w", err)
		}

		contacts := make([]RemoteContact, 0, len(result.Records))
		for _, record := range result.Records {
			contact := RemoteContact{
				ExternalID:  record.ID,
				DisplayName: record.LastName,
				Converted:   record.ConvertedC,
			}
			if record.Email != nil {
				contact.Email = *record.Email
			}
			if record.Phone != nil {
				contact.Phone = *record.Phone
			}
			if record.SocialHandle != nil {
				contact.Username = *record.SocialHandle
			}
			if ts, err := time.Parse("2006-01-02T15:04:05.000-0700", record.LastModifiedDate); err == nil {
				contact.UpdatedAt = ts
			}
			contacts = append(contacts, contact)
		}

		page = Page{Contacts: contacts}
		if !result.Done {
			page.Cursor = result.NextRecordsURL
		}
		return nil
	})
	return page, err
}

func (s *Salesforce) do(ctx context.Context, method, reqURL string, payload any) (*http.Response, error) {
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
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}
