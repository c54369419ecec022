package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type MockStage struct {
	t                  *testing.T
	assert             *assert.Assertions
	mock               *pactmock.Client
	interactionName    string
	verifyResult       error
	requestsToSend     int32
	requestsSent       int32
	responses          []*http.Response
	responseBodies     [][]byte
	modifiedStatusCode int
	modifiedAttempt    *int
	modifiedBody       map[string]string
}

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	mock, err := setupAndWaitForMock()
	if err != nil {
		t.Logf("Error setting up mock server: %v", err)
		t.Fail()
	}

	s := &MockStage{
		t:               t,
		assert:          assert.New(t),
		mock:            mock,
		modifiedBody:    make(map[string]string),
		interactionName: "interaction-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
	}

	s.t.Cleanup(func() {
		pactmock.Configuration(adminURL.String()).Reset()
	})

	return s, s, s
}

func setupAndWaitForMock() (*pactmock.Client, error) {
	mock, err := pactmock.
		Configuration(adminURL.String()).
		SetupServer(mockURL.String())
	if err != nil {
		return nil, errors.Wrap(err, "mock server setup failed")
	}

	retryOpts := []retry.Option{
		retry.Attempts(10),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(500 * time.Millisecond),
	}

	err = retry.Do(mock.IsReady, retryOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "mock server readiness wait failed")
	}

	return mock, nil
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) an_interaction_that_expects_an_exact_name() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": "sam"},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]string{"name": "any"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_allows_any_names() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": pactmock.Term("any", ".*")},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]string{"name": "any"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_allows_any_age() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"age": pactmock.SomethingLike(27)},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]int64{"age": 100},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_allows_any_first_and_last_names() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body: map[string]interface{}{
				"first_name": pactmock.Term("any", ".*"),
				"last_name":  pactmock.Term("any", ".*"),
			},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]string{"first_name": "any", "last_name": "any"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_returns_no_body() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": pactmock.Term("any", ".*")},
		},
		Response: pactmock.Response{
			Status: 204,
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_expects_plain_text() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "text/plain"},
			Body:    "text",
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "text/plain"},
			Body:    "text",
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_with_a_term_path() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName,
		Request: pactmock.Request{
			Method: "GET",
			Path:   pactmock.Term("/users/1234", "/users/[0-9]+"),
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]string{"id": "1234"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) an_interaction_that_allows_any_address() *MockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: s.interactionName + "-address",
		Request: pactmock.Request{
			Method:  "POST",
			Path:    "/addresses",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"address": pactmock.Term("any", ".*")},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]string{"address": "any"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *MockStage) two_interactions_matching_the_same_request() *MockStage {
	for _, suffix := range []string{"-1", "-2"} {
		err := s.mock.Register(pactmock.Interaction{
			Description: s.interactionName + suffix,
			Request: pactmock.Request{
				Method:  "POST",
				Path:    "/users",
				Headers: map[string]interface{}{"Content-Type": "application/json"},
				Body:    map[string]interface{}{"name": "sam"},
			},
			Response: pactmock.Response{
				Status:  200,
				Headers: map[string]interface{}{"Content-Type": "application/json"},
				Body:    map[string]string{"name": "any"},
			},
		})
		s.assert.NoError(err)
	}
	return s
}

func (s *MockStage) a_modified_response_status_of_(statusCode int) *MockStage {
	s.modifiedStatusCode = statusCode
	return s
}

func (s *MockStage) a_modified_response_body_of_(path, value string) *MockStage {
	s.modifiedBody[path] = value
	return s
}

func (s *MockStage) a_modified_response_attempt_of(i int) {
	s.modifiedAttempt = &i
}

func (s *MockStage) a_plain_text_request_is_sent() {
	s.n_requests_are_sent_using_the_body_and_content_type(1, "text", "text/plain")
}

func (s *MockStage) a_request_is_sent_using_the_name(name string) {
	s.n_requests_are_sent_using_the_name(1, name)
}

func (s *MockStage) n_requests_are_sent_using_the_name(n int, name string) {
	s.n_requests_are_sent_using_the_body(n, fmt.Sprintf(`{"name":"%s"}`, name))
}

func (s *MockStage) a_request_is_sent_using_the_body(body string) {
	s.n_requests_are_sent_using_the_body(1, body)
}

func (s *MockStage) n_requests_are_sent_using_the_body(n int, body string) {
	s.n_requests_are_sent_using_the_body_and_content_type(n, body, "application/json")
}

func (s *MockStage) n_requests_are_sent_using_the_body_and_content_type(n int, body, contentType string) {
	if s.modifiedStatusCode != 0 {
		err := s.mock.
			ForInteraction(s.interactionName).
			AddModifier("$.status", fmt.Sprintf("%d", s.modifiedStatusCode), s.modifiedAttempt)
		s.assert.NoError(err)
	}

	for path, value := range s.modifiedBody {
		err := s.mock.
			ForInteraction(s.interactionName).
			AddModifier(path, value, s.modifiedAttempt)
		s.assert.NoError(err)
	}

	u := fmt.Sprintf("http://localhost:%s/users", mockURL.Port())
	for i := 0; i < n; i++ {
		s.send_post_request_and_collect_response(body, u, contentType)
	}

	s.verifyResult = s.mock.Verify()
}

func (s *MockStage) a_get_request_is_sent_to_(path string) {
	res, err := http.Get(fmt.Sprintf("http://localhost:%s%s", mockURL.Port(), path))
	s.assert.NoError(err, "sending request failed")
	if err != nil {
		return
	}

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)

	s.verifyResult = s.mock.Verify()
}

func (s *MockStage) send_post_request_and_collect_response(body, url, contentType string) {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	s.assert.NoError(err, "request creation failed")

	req.Header.Set("Content-Type", contentType)
	res, err := http.DefaultClient.Do(req)
	s.assert.NoError(err, "sending request failed")
	if err != nil {
		return
	}

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)
}

func (s *MockStage) multiple_requests_are_sent(requestsToSend int32) {
	s.requestsToSend = requestsToSend
	atomic.StoreInt32(&s.requestsSent, 0)
	go func() {
		for i := int32(0); i < requestsToSend; i++ {
			u := fmt.Sprintf("http://localhost:%s/users", mockURL.Port())
			req, err := http.NewRequest("POST", u, strings.NewReader(`{"name":"test"}`))
			s.assert.NoError(err)

			req.Header.Set("Content-Type", "application/json")
			atomic.AddInt32(&s.requestsSent, 1)
			res, err := http.DefaultClient.Do(req)
			s.assert.NoError(err)
			if err == nil {
				res.Body.Close()
			}
		}
	}()

	err := s.mock.WaitForInteraction(s.interactionName, int(requestsToSend))
	s.assert.NoError(err)

	s.verifyResult = s.mock.Verify()
}

func (s *MockStage) requests_for_names_and_addresses_are_sent() {
	s.send_post_request_and_collect_response(`{"name":"sam"}`,
		fmt.Sprintf("http://localhost:%s/users", mockURL.Port()), "application/json")
	s.send_post_request_and_collect_response(`{"address":"any street"}`,
		fmt.Sprintf("http://localhost:%s/addresses", mockURL.Port()), "application/json")

	err := s.mock.WaitForAll()
	s.assert.NoError(err)

	s.verifyResult = s.mock.Verify()
}

func (s *MockStage) verification_is_successful() *MockStage {
	s.assert.NoError(s.verifyResult)
	return s
}

func (s *MockStage) verification_is_not_successful() *MockStage {
	s.assert.ErrorContains(s.verifyResult, "missing request", "verification did not fail")
	return s
}

func (s *MockStage) the_mock_waits_for_all_requests() *MockStage {
	sent := atomic.LoadInt32(&s.requestsSent)
	s.assert.Equal(s.requestsToSend, sent, "mock server did not wait for requests")
	return s
}

func (s *MockStage) the_mock_identifies_itself() *MockStage {
	identity, err := s.mock.Identify()
	s.assert.NoError(err)
	s.assert.NotEmpty(identity.ID)
	return s
}

func (s *MockStage) the_response_is_(statusCode int) *MockStage {
	s.the_nth_response_is_(1, statusCode)
	return s
}

func (s *MockStage) the_response_name_is_(name string) *MockStage {
	s.the_nth_response_name_is_(1, name)
	return s
}

func (s *MockStage) the_nth_response_is_(n, statusCode int) *MockStage {
	s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected")
	s.assert.Equalf(statusCode, s.responses[n-1].StatusCode, "Expected status code on attempt %d: %d, got : %d", n, statusCode, s.responses[n-1].StatusCode)
	return s
}

func (s *MockStage) the_nth_response_name_is_(n int, name string) *MockStage {
	s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected")

	var body map[string]string
	err := json.Unmarshal(s.responseBodies[n-1], &body)
	s.assert.NoError(err, "unable to parse response body, %v", err)
	s.assert.Equalf(name, body["name"], "Expected name on attempt %d,: %s, got: %s", n, name, body["name"])
	return s
}

func (s *MockStage) the_nth_response_age_is_(n int, age int64) *MockStage {
	s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected")

	var body map[string]int64
	err := json.Unmarshal(s.responseBodies[n-1], &body)
	s.assert.NoError(err, "unable to parse response body")

	s.assert.Equalf(age, body["age"], "Expected age on attempt %d,: %d, got: %d", n, age, body["age"])

	return s
}

func (s *MockStage) the_nth_response_body_has_(n int, key, value string) *MockStage {
	s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of response bodies is less than expected")

	var responseBody map[string]string
	err := json.Unmarshal(s.responseBodies[n-1], &responseBody)
	s.assert.NoError(err, "unable to parse response body, %v", err)
	s.assert.Equalf(value, responseBody[key], "Expected %s on attempt %d,: %s, got: %s", key, n, value, responseBody[key])
	return s
}

func (s *MockStage) the_response_body_is_(data string) *MockStage {
	s.assert.GreaterOrEqual(len(s.responseBodies), 1, "number of response bodies is less than expected")
	s.assert.Equal(data, string(s.responseBodies[0]), "Expected body did not match")
	return s
}

func (s *MockStage) the_response_has_no_body() *MockStage {
	s.assert.GreaterOrEqual(len(s.responseBodies), 1, "number of response bodies is less than expected")
	s.assert.Empty(s.responseBodies[0])
	return s
}

func (s *MockStage) n_responses_were_received(n int) *MockStage {
	s.assert.Len(s.responses, n)
	return s
}

func (s *MockStage) the_response_reports_no_matching_interaction() *MockStage {
	s.the_response_is_(http.StatusInternalServerError)
	s.assert.Contains(string(s.responseBodies[0]), "No interaction found for /users")
	s.assert.Contains(string(s.responseBodies[0]), "interaction_diff")
	return s
}

func (s *MockStage) the_response_reports_an_ambiguous_request() *MockStage {
	s.the_response_is_(http.StatusInternalServerError)
	s.assert.Contains(string(s.responseBodies[0]), "ambiguous request: 2 interactions match POST /users")
	return s
}
