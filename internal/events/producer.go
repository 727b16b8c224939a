// README: Kafka event sink for dispatch outcomes. Best-effort by contract:
// the engine logs publish failures and moves on.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ridepool/internal/modules/dispatch"
	"ridepool/internal/types"
)

const publishTimeout = 2 * time.Second

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w}
}

// assignmentEvent is the wire shape of a committed plan.
type assignmentEvent struct {
	Type             string     `json:"type"`
	DriverID         types.ID   `json:"driver_id"`
	RiderID          types.ID   `json:"rider_id"`
	AssignmentIDs    []types.ID `json:"assignment_ids"`
	TripID           *types.ID  `json:"trip_id,omitempty"`
	EstimatedPickup  time.Time  `json:"estimated_pickup"`
	EstimatedDropoff time.Time  `json:"estimated_dropoff"`
}

type cycleEvent struct {
	Type          string                     `json:"type"`
	Assigned      int                        `json:"assigned"`
	CarpoolGroups int                        `json:"carpool_groups"`
	Unassigned    []dispatch.UnassignedRider `json:"unassigned"`
	At            time.Time                  `json:"at"`
}

func (p *Producer) AssignmentCommitted(ctx context.Context, plan dispatch.AssignmentPlan, res dispatch.CommitResult) error {
	ev := assignmentEvent{
		Type:             "assignment.committed",
		DriverID:         plan.DriverID,
		RiderID:          plan.Rider.ID,
		AssignmentIDs:    res.AssignmentIDs,
		TripID:           res.TripID,
		EstimatedPickup:  plan.EstimatedPickup,
		EstimatedDropoff: plan.EstimatedDropoff,
	}
	return p.publish(ctx, string(plan.DriverID), ev)
}

func (p *Producer) CycleCompleted(ctx context.Context, rep dispatch.Report) error {
	ev := cycleEvent{
		Type:          "cycle.completed",
		Assigned:      rep.Assigned,
		CarpoolGroups: rep.CarpoolGroups,
		Unassigned:    rep.Unassigned,
		At:            time.Now().UTC(),
	}
	return p.publish(ctx, "cycle", ev)
}

func (p *Producer) publish(ctx context.Context, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
