package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	requestTimeout     = time.Second * 30
	requestContentType = "application/json"
	maxResponseBody    = 1 << 20
)

type ApiConfig struct {
	Url string
}

func (ac *ApiConfig) Valid() (bool, error) {
	if ac.Url == "" {
		return false, errors.New("empty url")
	} else if !strings.HasPrefix(ac.Url, "http://") && !strings.HasPrefix(ac.Url, "https://") {
		return false, errors.Errorf("unsupported url scheme in '%s'", ac.Url)
	}

	return true, nil
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) Successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type RestfulClient struct {
	logger     *zap.Logger
	context    context.Context
	cancel     context.CancelFunc
	httpClient *http.Client
	apiConfig  *ApiConfig
}

func trimUrlSeparatorSuffix(urlPart string) string {
	return strings.TrimSuffix(urlPart, "/")
}

func NewRestfulClient(ctx context.Context, rootLogger *zap.Logger, apiConfig *ApiConfig) (*RestfulClient, error) {
	if valid, err := apiConfig.Valid(); !valid {
		return nil, errors.WithMessage(err, "validate api config")
	}

	logger := rootLogger.Named("restful-client")
	ctx, cancel := context.WithCancel(ctx)

	return &RestfulClient{
		logger:     logger,
		context:    ctx,
		cancel:     cancel,
		httpClient: &http.Client{},
		apiConfig:  &ApiConfig{Url: trimUrlSeparatorSuffix(apiConfig.Url)},
	}, nil
}

// Post sends message to endpoint, relative to the configured url. An empty endpoint
// posts to the url itself.
func (rc *RestfulClient) Post(ctx context.Context, endpoint string, message []byte) (*Response, error) {
	return rc.sendRequest(ctx, http.MethodPost, endpoint, message)
}

func (rc *RestfulClient) endpointUrl(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return rc.apiConfig.Url
	}
	return fmt.Sprintf("%s/%s", rc.apiConfig.Url, endpoint)
}

func (rc *RestfulClient) sendRequest(ctx context.Context, method string, endpoint string,
	message []byte) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessage(err, "request canceled")
	}

	requestContext, cancelRequest := context.WithTimeout(rc.context, requestTimeout)
	defer cancelRequest()

	// Either context cancels the request.
	stop := context.AfterFunc(ctx, cancelRequest)
	defer stop()

	url := rc.endpointUrl(endpoint)

	request, err := http.NewRequestWithContext(requestContext, method, url, bytes.NewBuffer(message))
	if err != nil {
		return nil, errors.WithMessage(err, "new request")
	}
	request.Header.Set("Content-Type", requestContentType)

	rc.logger.Debug("Send request", zap.String("Method", method), zap.String("Url", url))

	response, err := rc.httpClient.Do(request)
	if err != nil {
		return nil, errors.WithMessage(err, "request failed")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBody))
	if err != nil {
		return nil, errors.WithMessage(err, "read response body")
	}

	return &Response{StatusCode: response.StatusCode, Body: body}, nil
}

func (rc *RestfulClient) AbortAll() {
	rc.httpClient.CloseIdleConnections()
	rc.cancel()
}
