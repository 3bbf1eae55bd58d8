package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

const (
	debounceFlushInterval = 50 * time.Millisecond
	clientCleanupInterval = 60 * time.Second
	clientInactivityLimit = 300 * time.Second
	rateWindow            = 60 * time.Second
)

// Sender delivers one serialized notification to a client. The server
// implements it by enqueueing onto the session's outbound queue.
type Sender interface {
	SendNotification(clientID string, payload []byte) error
}

// notificationClient is the per-client notification state.
type notificationClient struct {
	id               string
	capabilities     map[string]bool
	subscriptions    map[string]*subscription
	minLogLevel      string
	lastNotification time.Time
	window           []time.Time // delivery timestamps inside the rate window
}

type subscription struct {
	id        string
	method    string
	filters   map[string]any
	createdAt time.Time
}

type debounceKey struct {
	method string
	key    string
}

// debouncedNotification holds the last payload written for a debounce
// key and the union of its target clients.
type debouncedNotification struct {
	payload   []byte
	method    string
	clients   map[string]bool
	sendAfter time.Time
}

// NotificationManager fans server notifications out to clients with
// per-client rate limiting, debouncing, and subscription tracking.
type NotificationManager struct {
	sender          Sender
	rateLimit       int
	defaultDebounce time.Duration

	clientsMu sync.Mutex
	clients   map[string]*notificationClient

	debounceMu sync.Mutex
	debounced  map[debounceKey]*debouncedNotification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotificationManager creates a manager delivering through sender.
// Non-positive limits fall back to 60 notifications per minute and a
// 100 ms default debounce.
func NewNotificationManager(sender Sender, rateLimitPerMinute, defaultDebounceMs int) *NotificationManager {
	if rateLimitPerMinute <= 0 {
		rateLimitPerMinute = 60
	}
	if defaultDebounceMs <= 0 {
		defaultDebounceMs = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationManager{
		sender:          sender,
		rateLimit:       rateLimitPerMinute,
		defaultDebounce: time.Duration(defaultDebounceMs) * time.Millisecond,
		clients:         make(map[string]*notificationClient),
		debounced:       make(map[debounceKey]*debouncedNotification),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start launches the debounce flush and inactivity cleanup loops.
func (m *NotificationManager) Start() {
	m.wg.Add(2)
	go m.flushLoop()
	go m.cleanupLoop()
	logger.Info("Notification manager started")
}

// Stop cancels the background loops and discards pending debounced
// notifications.
func (m *NotificationManager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.debounceMu.Lock()
	m.debounced = make(map[debounceKey]*debouncedNotification)
	m.debounceMu.Unlock()
	logger.Info("Notification manager stopped")
}

// RegisterClient adds a client with the notification methods it may
// subscribe to.
func (m *NotificationManager) RegisterClient(clientID string, capabilities []string) {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}

	m.clientsMu.Lock()
	m.clients[clientID] = &notificationClient{
		id:               clientID,
		capabilities:     caps,
		subscriptions:    make(map[string]*subscription),
		minLogLevel:      "info",
		lastNotification: time.Now(),
	}
	m.clientsMu.Unlock()
	logger.Debug("Registered notification client %s with %d capabilities", clientID, len(capabilities))
}

// UnregisterClient removes a client, its subscriptions, and any
// debounced notifications addressed solely to it.
func (m *NotificationManager) UnregisterClient(clientID string) {
	m.clientsMu.Lock()
	delete(m.clients, clientID)
	m.clientsMu.Unlock()

	m.debounceMu.Lock()
	for key, entry := range m.debounced {
		delete(entry.clients, clientID)
		if len(entry.clients) == 0 {
			delete(m.debounced, key)
		}
	}
	m.debounceMu.Unlock()
	logger.Debug("Unregistered notification client %s", clientID)
}

// SetClientLogLevel adjusts the minimum level at which log messages
// are forwarded to the client.
func (m *NotificationManager) SetClientLogLevel(clientID, level string) {
	m.clientsMu.Lock()
	if client, ok := m.clients[clientID]; ok {
		client.minLogLevel = level
	}
	m.clientsMu.Unlock()
}

// Subscribe registers the client for the given notification methods.
// Methods the client did not declare at registration are skipped with
// a warning.
func (m *NotificationManager) Subscribe(clientID string, methods []string, filters map[string]any) ([]protocol.Subscription, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: client %q not registered", ErrSession, clientID)
	}

	subs := make([]protocol.Subscription, 0, len(methods))
	for _, method := range methods {
		if !client.capabilities[method] {
			logger.Warn("Client %s lacks capability for %s", clientID, method)
			continue
		}
		sub := &subscription{
			id:        uuid.New().String(),
			method:    method,
			filters:   filters,
			createdAt: time.Now(),
		}
		client.subscriptions[sub.id] = sub
		subs = append(subs, protocol.Subscription{
			SubscriptionID: sub.id,
			Method:         sub.method,
			CreatedAt:      sub.createdAt.UTC().Format(time.RFC3339),
			Filters:        filters,
		})
		logger.Debug("Client %s subscribed to %s", clientID, method)
	}
	return subs, nil
}

// Unsubscribe removes the given subscription ids. It reports false
// when the client is unknown or any id did not exist.
func (m *NotificationManager) Unsubscribe(clientID string, subscriptionIDs []string) bool {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}

	success := true
	for _, id := range subscriptionIDs {
		if _, ok := client.subscriptions[id]; ok {
			delete(client.subscriptions, id)
		} else {
			success = false
		}
	}
	return success
}

// NotifyProgress sends a notifications/progress message. An empty
// debounceKey defaults to the progress token; debounceMS < 0 uses the
// manager default, 0 sends immediately.
func (m *NotificationManager) NotifyProgress(token any, progress, total float64, message string, clients []string, debounceKey string, debounceMS int) {
	params := &protocol.ProgressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	}
	if debounceKey == "" {
		debounceKey = fmt.Sprint(token)
	}
	m.dispatch(protocol.NotificationProgress, params, clients, debounceKey, debounceMS)
}

// NotifyMessage sends a notifications/message log line. Messages are
// never debounced; clients whose minimum level is above level are
// skipped.
func (m *NotificationManager) NotifyMessage(level string, data any, loggerName string, clients []string) {
	params := &protocol.LoggingMessageParams{Level: level, Logger: loggerName, Data: data}
	payload, err := marshalNotification(protocol.NotificationMessage, params)
	if err != nil {
		logger.Error("Failed to encode log notification: %v", err)
		return
	}

	targets := m.resolveTargets(protocol.NotificationMessage, clients)
	targets = m.filterByLevel(targets, level)
	m.sendToClients(protocol.NotificationMessage, payload, targets)
}

// NotifyResourceUpdated sends notifications/resources/updated. An
// empty debounceKey defaults to the URI.
func (m *NotificationManager) NotifyResourceUpdated(uri string, clients []string, debounceKey string, debounceMS int) {
	params := &protocol.ResourceUpdatedParams{URI: uri}
	if debounceKey == "" {
		debounceKey = uri
	}
	m.dispatch(protocol.NotificationResourceUpdated, params, clients, debounceKey, debounceMS)
}

// NotifyResourceListChanged sends notifications/resources/list_changed.
func (m *NotificationManager) NotifyResourceListChanged(clients []string) {
	m.dispatch(protocol.NotificationResourcesListChanged, nil, clients, "", 0)
}

// NotifyToolListChanged sends notifications/tools/list_changed.
func (m *NotificationManager) NotifyToolListChanged(clients []string) {
	m.dispatch(protocol.NotificationToolsListChanged, nil, clients, "", 0)
}

// NotifyPromptListChanged sends notifications/prompts/list_changed.
func (m *NotificationManager) NotifyPromptListChanged(clients []string) {
	m.dispatch(protocol.NotificationPromptsListChanged, nil, clients, "", 0)
}

// NotifyCancelled sends notifications/cancelled. Never debounced.
func (m *NotificationManager) NotifyCancelled(requestID any, reason string, clients []string) {
	params := &protocol.CancelledParams{RequestID: requestID, Reason: reason}
	m.dispatch(protocol.NotificationCancelled, params, clients, "", 0)
}

// dispatch routes a notification either through the debounce table or
// straight to the targets. debounceMS < 0 selects the manager default.
func (m *NotificationManager) dispatch(method string, params any, clients []string, key string, debounceMS int) {
	payload, err := marshalNotification(method, params)
	if err != nil {
		logger.Error("Failed to encode %s notification: %v", method, err)
		return
	}

	targets := m.resolveTargets(method, clients)
	if len(targets) == 0 {
		return
	}

	if key != "" && debounceMS != 0 {
		wait := m.defaultDebounce
		if debounceMS > 0 {
			wait = time.Duration(debounceMS) * time.Millisecond
		}
		m.debounce(method, key, payload, targets, wait)
		return
	}
	m.sendToClients(method, payload, targets)
}

func marshalNotification(method string, params any) ([]byte, error) {
	return json.Marshal(protocol.NewNotification(method, params))
}

// resolveTargets returns the explicit client list filtered to known
// clients, or, when nil, every client subscribed to the method.
func (m *NotificationManager) resolveTargets(method string, clients []string) []string {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	if clients != nil {
		targets := make([]string, 0, len(clients))
		for _, id := range clients {
			if _, ok := m.clients[id]; ok {
				targets = append(targets, id)
			}
		}
		return targets
	}

	var targets []string
	for id, client := range m.clients {
		for _, sub := range client.subscriptions {
			if sub.method == method {
				targets = append(targets, id)
				break
			}
		}
	}
	return targets
}

// filterByLevel drops clients whose minimum forwarded log level is
// above the message level.
func (m *NotificationManager) filterByLevel(targets []string, level string) []string {
	priority, ok := protocol.LogLevelPriority[level]
	if !ok {
		return targets
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	kept := targets[:0]
	for _, id := range targets {
		client, ok := m.clients[id]
		if !ok {
			continue
		}
		min, ok := protocol.LogLevelPriority[client.minLogLevel]
		if ok && priority < min {
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// debounce upserts the entry for (method, key): the payload is
// overwritten, the client set is unioned, and the deadline pushed out.
func (m *NotificationManager) debounce(method, key string, payload []byte, targets []string, wait time.Duration) {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	dk := debounceKey{method: method, key: key}
	entry, ok := m.debounced[dk]
	if !ok {
		entry = &debouncedNotification{
			method:  method,
			clients: make(map[string]bool),
		}
		m.debounced[dk] = entry
	}
	entry.payload = payload
	entry.sendAfter = time.Now().Add(wait)
	for _, id := range targets {
		entry.clients[id] = true
	}
}

func (m *NotificationManager) flushLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(debounceFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.flushDue(now)
		}
	}
}

// flushDue sends every debounced entry whose deadline has passed.
// Delivery happens outside the debounce lock.
func (m *NotificationManager) flushDue(now time.Time) {
	var due []*debouncedNotification

	m.debounceMu.Lock()
	for key, entry := range m.debounced {
		if !now.Before(entry.sendAfter) {
			due = append(due, entry)
			delete(m.debounced, key)
		}
	}
	m.debounceMu.Unlock()

	for _, entry := range due {
		targets := make([]string, 0, len(entry.clients))
		for id := range entry.clients {
			targets = append(targets, id)
		}
		m.sendToClients(entry.method, entry.payload, targets)
	}
}

// sendToClients delivers a payload to each target, enforcing the
// per-client sliding rate window. Failed sends are logged and dropped.
func (m *NotificationManager) sendToClients(method string, payload []byte, targets []string) {
	for _, id := range targets {
		if !m.allow(id) {
			logger.Warn("Notification rate limit exceeded for client %s, dropping %s", id, method)
			metrics.RecordNotificationDrop(method)
			continue
		}
		if err := m.sender.SendNotification(id, payload); err != nil {
			logger.Debug("Failed to send notification to client %s: %v", id, err)
			continue
		}
		m.touch(id)
	}
}

// allow checks and consumes one slot in the client's sliding window.
func (m *NotificationManager) allow(clientID string) bool {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)
	kept := client.window[:0]
	for _, t := range client.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	client.window = kept

	if len(client.window) >= m.rateLimit {
		return false
	}
	client.window = append(client.window, now)
	return true
}

func (m *NotificationManager) touch(clientID string) {
	m.clientsMu.Lock()
	if client, ok := m.clients[clientID]; ok {
		client.lastNotification = time.Now()
	}
	m.clientsMu.Unlock()
}

func (m *NotificationManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(clientCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.dropInactive(now)
		}
	}
}

// dropInactive removes clients that have no subscriptions and have not
// received a notification within the inactivity limit.
func (m *NotificationManager) dropInactive(now time.Time) {
	m.clientsMu.Lock()
	var inactive []string
	for id, client := range m.clients {
		if now.Sub(client.lastNotification) > clientInactivityLimit && len(client.subscriptions) == 0 {
			inactive = append(inactive, id)
		}
	}
	for _, id := range inactive {
		delete(m.clients, id)
	}
	m.clientsMu.Unlock()

	for _, id := range inactive {
		logger.Debug("Cleaned up inactive notification client %s", id)
	}
}
