package scoring

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/gateway"
)

const (
	LoginPath        = "/auth/login"
	RegisterPath     = "/auth/register"
	ProfilePath      = "/auth/me"
	UploadPath       = "/upload-resume"
	ScorePath        = "/score"
	RewritePath      = "/rewrite"
	SavePath         = "/analyze"
	ReportPath       = "/init-score-download"
	AnalysesPath     = "/analyses"
	uploadFieldName  = "file"
	accessTokenField = "access_token"
)

// Client speaks the scoring service's HTTP contract on top of the gateway.
type Client struct {
	gw     *gateway.Client
	logger *zap.Logger
}

func New(gw *gateway.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{gw: gw, logger: logger}
}

func (c *Client) Login(ctx context.Context, creds *Credentials) (string, error) {
	if creds == nil || strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return "", apierr.Validation("email and password are required")
	}

	return c.authenticate(ctx, LoginPath, &Credentials{Email: strings.TrimSpace(creds.Email), Password: creds.Password})
}

func (c *Client) Register(ctx context.Context, creds *Credentials) (string, error) {
	if creds == nil || strings.TrimSpace(creds.Email) == "" || creds.Password == "" || strings.TrimSpace(creds.Username) == "" {
		return "", apierr.Validation("email, username and password are required")
	}

	return c.authenticate(ctx, RegisterPath, creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds *Credentials) (string, error) {
	resp, err := c.gw.Call(ctx, path, &gateway.Options{Method: http.MethodPost, JSON: creds}, "")
	if err != nil {
		return "", err
	}

	body, ok := resp.Data.(map[string]any)
	if !ok {
		return "", apierr.Malformed(fmt.Errorf("%s: expected an object", path))
	}

	token, _ := body[accessTokenField].(string)
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apierr.Malformed(fmt.Errorf("%s: %s is missing", path, accessTokenField))
	}

	return token, nil
}

func (c *Client) Me(ctx context.Context, credential string) (*Profile, error) {
	resp, err := c.gw.Call(ctx, ProfilePath, nil, credential)
	if err != nil {
		return nil, err
	}

	var profile *Profile
	if err := decode(resp.Data, &profile); err != nil {
		return nil, err
	}

	return profile, nil
}

// UploadResume sends the document as multipart form data and returns the extraction.
func (c *Client) UploadResume(ctx context.Context, doc *document.Document, credential string) (*Parsed, error) {
	if doc == nil || doc.Size() == 0 {
		return nil, apierr.Validation("a resume file is required")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadFieldName, doc.Name))
	header.Set("Content-Type", doc.ContentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, apierr.Validation(fmt.Sprintf("building upload: %v", err))
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, apierr.Validation(fmt.Sprintf("building upload: %v", err))
	}
	w.Close()

	c.logger.Debug("uploading resume",
		zap.String("filename", doc.Name),
		zap.String("content_type", doc.ContentType),
		zap.Int("size", doc.Size()),
	)

	resp, err := c.gw.Call(ctx, UploadPath, &gateway.Options{
		Method:      http.MethodPost,
		Body:        &b,
		ContentType: w.FormDataContentType(),
	}, credential)
	if err != nil {
		return nil, err
	}

	body, ok := resp.Data.(map[string]any)
	if !ok || body["parsed"] == nil {
		return nil, apierr.Malformed(fmt.Errorf("%s: parsed result is missing", UploadPath))
	}

	var parsed *Parsed
	if err := decode(body["parsed"], &parsed); err != nil {
		return nil, err
	}
	parsed.Skills = uniqueTags(parsed.Skills)

	return parsed, nil
}

func (c *Client) Score(ctx context.Context, payload *Payload, credential string) (*ScoreResult, error) {
	resp, err := c.gw.Call(ctx, ScorePath, &gateway.Options{Method: http.MethodPost, JSON: payload}, credential)
	if err != nil {
		return nil, err
	}

	var result *ScoreResult
	if err := decode(resp.Data, &result); err != nil {
		return nil, err
	}

	// The service reports missing input with a 200 and an error field.
	if msg := strings.TrimSpace(result.Error); msg != "" {
		return nil, apierr.Service(resp.StatusCode, msg)
	}

	return result, nil
}

func (c *Client) Rewrite(ctx context.Context, payload *Payload, credential string) (*RewriteResult, error) {
	resp, err := c.gw.Call(ctx, RewritePath, &gateway.Options{Method: http.MethodPost, JSON: payload}, credential)
	if err != nil {
		return nil, err
	}

	var result *RewriteResult
	if err := decode(resp.Data, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) SaveAnalysis(ctx context.Context, req *SaveRequest, credential string) error {
	_, err := c.gw.Call(ctx, SavePath, &gateway.Options{Method: http.MethodPost, JSON: req}, credential)
	return err
}

// InitScoreDownload asks the service to render a report and returns an absolute locator for it.
func (c *Client) InitScoreDownload(ctx context.Context, req *ReportRequest, credential string) (string, error) {
	resp, err := c.gw.Call(ctx, ReportPath, &gateway.Options{Method: http.MethodPost, JSON: req}, credential)
	if err != nil {
		return "", err
	}

	body, _ := resp.Data.(map[string]any)
	locator, _ := body["download_url"].(string)
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", apierr.Malformed(fmt.Errorf("%s: download_url is missing", ReportPath))
	}

	return c.gw.URL(locator), nil
}

// Download fetches a report locator into w.
func (c *Client) Download(ctx context.Context, locator, credential string, w io.Writer) (int64, error) {
	resp, err := c.gw.Call(ctx, locator, &gateway.Options{Method: http.MethodGet}, credential)
	if err != nil {
		return 0, err
	}

	n, err := w.Write(resp.Body)
	if err != nil {
		return int64(n), fmt.Errorf("writing report: %w", err)
	}

	return int64(n), nil
}

func (c *Client) Analyses(ctx context.Context, credential string) ([]*Analysis, error) {
	resp, err := c.gw.Call(ctx, AnalysesPath, nil, credential)
	if err != nil {
		return nil, err
	}

	items := resp.Data
	if wrapped, ok := items.(map[string]any); ok {
		items = wrapped["analyses"]
		if items == nil {
			items = wrapped["items"]
		}
	}
	if items == nil {
		return []*Analysis{}, nil
	}

	var analyses []*Analysis
	if err := decode(items, &analyses); err != nil {
		return nil, err
	}

	return analyses, nil
}

func decode(input, target any) error {
	if input == nil {
		return apierr.Malformed(fmt.Errorf("empty response body"))
	}

	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return apierr.Malformed(err)
	}

	if err := decoder.Decode(input); err != nil {
		return apierr.Malformed(err)
	}

	return nil
}
