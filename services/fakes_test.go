package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"booking/models"
)

// fakeGeocoder answers from a table keyed by the request address.
type fakeGeocoder struct {
	mu        sync.Mutex
	responses map[string]GeocodeResponse
	err       error
	requests  []GeocodeRequest
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{responses: make(map[string]GeocodeResponse)}
}

func (f *fakeGeocoder) Geocode(ctx context.Context, req GeocodeRequest) (GeocodeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return GeocodeResponse{}, f.err
	}
	resp, ok := f.responses[req.Address]
	if !ok {
		return GeocodeResponse{Status: "ZERO_RESULTS"}, nil
	}
	return resp, nil
}

func (f *fakeGeocoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func zipResult(postal, city, state string) GeocodeResponse {
	return GeocodeResponse{
		Status: "OK",
		Results: []GeocodeResult{{
			FormattedAddress: fmt.Sprintf("%s, %s %s, USA", city, state, postal),
			Geometry:         GeocodeGeometry{Location: models.Coordinates{Lat: 34.09, Lng: -118.41}},
			PlaceID:          "place-" + postal,
			AddressComponents: []AddressComponent{
				{LongName: postal, ShortName: postal, Types: []string{"postal_code"}},
				{LongName: city, ShortName: city, Types: []string{"locality", "political"}},
				{LongName: "Los Angeles County", ShortName: "Los Angeles County", Types: []string{"administrative_area_level_2", "political"}},
				{LongName: "California", ShortName: state, Types: []string{"administrative_area_level_1", "political"}},
				{LongName: "United States", ShortName: "US", Types: []string{"country", "political"}},
			},
		}},
	}
}

func addressResult(formatted, placeID string) GeocodeResponse {
	return GeocodeResponse{
		Status: "OK",
		Results: []GeocodeResult{{
			FormattedAddress: formatted,
			Geometry:         GeocodeGeometry{Location: models.Coordinates{Lat: 40.71, Lng: -74.0}},
			PlaceID:          placeID,
			AddressComponents: []AddressComponent{
				{LongName: "New York", ShortName: "New York", Types: []string{"locality"}},
				{LongName: "New York", ShortName: "NY", Types: []string{"administrative_area_level_1"}},
			},
		}},
	}
}

type transcriptEntry struct {
	Role    string
	Content string
}

// fakeAssistant keeps transcripts in memory and answers every chat turn
// with reply.
type fakeAssistant struct {
	mu          sync.Mutex
	threads     map[string][]transcriptEntry
	nextThread  int
	reply       string
	createErr   error
	appendErr   error
	submitErr   error
	submitCalls int
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{
		threads: make(map[string][]transcriptEntry),
		reply:   "Happy to help with your cleaning quote!",
	}
}

func (f *fakeAssistant) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextThread++
	id := fmt.Sprintf("thread_%d", f.nextThread)
	f.threads[id] = nil
	return id, nil
}

func (f *fakeAssistant) AppendMessage(ctx context.Context, threadID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if _, ok := f.threads[threadID]; !ok {
		return errors.New("no such thread")
	}
	f.threads[threadID] = append(f.threads[threadID], transcriptEntry{Role: role, Content: content})
	return nil
}

func (f *fakeAssistant) SubmitAndAwaitReply(ctx context.Context, threadID, message string) (AssistantReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return AssistantReply{}, f.submitErr
	}
	f.threads[threadID] = append(f.threads[threadID],
		transcriptEntry{Role: RoleUser, Content: message},
		transcriptEntry{Role: RoleAssistant, Content: f.reply})
	return AssistantReply{RunID: fmt.Sprintf("run_%d", f.submitCalls), Text: f.reply}, nil
}

func (f *fakeAssistant) ListMessages(ctx context.Context, threadID string) ([]models.TranscriptMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.TranscriptMessage, 0, len(f.threads[threadID]))
	for i, e := range f.threads[threadID] {
		out = append(out, models.TranscriptMessage{ID: fmt.Sprintf("msg_%d", i), Role: e.Role, Content: e.Content})
	}
	return out, nil
}

func (f *fakeAssistant) transcript(threadID string) []transcriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcriptEntry(nil), f.threads[threadID]...)
}

func (f *fakeAssistant) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}
