package network

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sisu-network/lib/log"
)

const (
	RetryMax     = 3
	RetryWaitMax = 5 * time.Second
)

type Http interface {
	Get(req *http.Request) ([]byte, error)
}

type DefaultHttp struct {
	client *retryablehttp.Client
}

func NewHttp() Http {
	client := retryablehttp.NewClient()
	client.RetryMax = RetryMax
	client.RetryWaitMax = RetryWaitMax
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = &retryLogger{}

	return &DefaultHttp{
		client: client,
	}
}

func (d *DefaultHttp) Get(req *http.Request) ([]byte, error) {
	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(retryReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s failed with status %d", req.URL.Host, resp.StatusCode)
	}

	return buf, nil
}

// retryLogger routes the logs of the retrying client into the bridge logger.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error(append([]interface{}{msg, " "}, keysAndValues...)...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Verbose(append([]interface{}{msg, " "}, keysAndValues...)...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debug(append([]interface{}{msg, " "}, keysAndValues...)...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn(append([]interface{}{msg, " "}, keysAndValues...)...)
}
