package app

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
	"github.com/stretchr/testify/assert"
)

const (
	postAddressInteraction     = "A request to create an address"
	postNameWithAnyNameMatcher = "A request to create a user with any name"
)

type ConcurrentMockStage struct {
	t                         *testing.T
	assert                    *assert.Assertions
	mock                      *pactmock.Client
	modifiedNameStatusCode    int
	modifiedAddressStatusCode int
	concurrentUserRequests    int
	concurrentAddressRequests int
	userResponses             []*http.Response
	addressResponses          []*http.Response
}

func NewConcurrentMockStage(t *testing.T) (*ConcurrentMockStage, *ConcurrentMockStage, *ConcurrentMockStage) {
	mock, err := setupAndWaitForMock()
	if err != nil {
		t.Logf("Error setting up mock server: %v", err)
		t.Fail()
	}

	s := &ConcurrentMockStage{
		t:      t,
		assert: assert.New(t),
		mock:   mock,
	}

	t.Cleanup(func() {
		pactmock.Configuration(adminURL.String()).Reset()
	})

	return s, s, s
}

func (s *ConcurrentMockStage) and() *ConcurrentMockStage {
	return s
}

func (s *ConcurrentMockStage) a_modified_name_status_code() *ConcurrentMockStage {
	s.modifiedNameStatusCode = http.StatusBadGateway
	return s
}

func (s *ConcurrentMockStage) a_modified_address_status_code() *ConcurrentMockStage {
	s.modifiedAddressStatusCode = http.StatusConflict
	return s
}

func (s *ConcurrentMockStage) an_interaction_that_allows_any_names() *ConcurrentMockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: postNameWithAnyNameMatcher,
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

func (s *ConcurrentMockStage) an_interaction_that_allows_any_address() *ConcurrentMockStage {
	err := s.mock.Register(pactmock.Interaction{
		Description: postAddressInteraction,
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

func (s *ConcurrentMockStage) x_concurrent_user_requests_are_made(x int) *ConcurrentMockStage {
	s.concurrentUserRequests = x
	return s
}

func (s *ConcurrentMockStage) x_concurrent_address_requests_are_made(x int) *ConcurrentMockStage {
	s.concurrentAddressRequests = x
	return s
}

func (s *ConcurrentMockStage) the_concurrent_requests_are_sent() {
	if s.modifiedNameStatusCode != 0 {
		err := s.mock.
			ForInteraction(postNameWithAnyNameMatcher).
			AddModifier("$.status", fmt.Sprintf("%d", s.modifiedNameStatusCode), nil)
		s.assert.NoError(err)
	}
	if s.modifiedAddressStatusCode != 0 {
		err := s.mock.
			ForInteraction(postAddressInteraction).
			AddModifier("$.status", fmt.Sprintf("%d", s.modifiedAddressStatusCode), nil)
		s.assert.NoError(err)
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < s.concurrentUserRequests; i++ {
			s.makeUserRequest()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < s.concurrentAddressRequests; i++ {
			s.makeAddressRequest()
		}
	}()

	wg.Wait()
}

func (s *ConcurrentMockStage) makeUserRequest() {
	u := fmt.Sprintf("http://localhost:%s/users", mockURL.Port())
	req, err := http.NewRequest("POST", u, strings.NewReader(`{"name":"jim"}`))
	s.assert.NoError(err)

	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	s.assert.NoError(err)
	if err != nil {
		return
	}
	res.Body.Close()
	s.userResponses = append(s.userResponses, res)
}

func (s *ConcurrentMockStage) makeAddressRequest() {
	u := fmt.Sprintf("http://localhost:%s/addresses", mockURL.Port())
	req, err := http.NewRequest("POST", u, strings.NewReader(`{"address":"test"}`))
	s.assert.NoError(err)

	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	s.assert.NoError(err)
	if err != nil {
		return
	}
	res.Body.Close()
	s.addressResponses = append(s.addressResponses, res)
}

func (s *ConcurrentMockStage) all_the_user_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	s.assert.Len(s.userResponses, s.concurrentUserRequests, "number of user responses is not as expected")

	for _, res := range s.userResponses {
		s.assert.Equal(s.modifiedNameStatusCode, res.StatusCode, "expected user status code")
	}

	return s
}

func (s *ConcurrentMockStage) all_the_address_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	s.assert.Len(s.addressResponses, s.concurrentAddressRequests, "number of address responses is not as expected")

	for _, res := range s.addressResponses {
		s.assert.Equal(s.modifiedAddressStatusCode, res.StatusCode, "expected address status code")
	}

	return s
}

func (s *ConcurrentMockStage) both_interactions_received_every_request() *ConcurrentMockStage {
	err := s.mock.WaitForInteraction(postNameWithAnyNameMatcher, s.concurrentUserRequests)
	s.assert.NoError(err)

	err = s.mock.WaitForInteraction(postAddressInteraction, s.concurrentAddressRequests)
	s.assert.NoError(err)

	return s
}
