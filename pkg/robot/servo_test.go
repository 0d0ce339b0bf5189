package robot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServo struct {
	calls []string
	err   error
}

func (s *fakeServo) Enable(ctx context.Context) error {
	s.calls = append(s.calls, "enable")
	return s.err
}

func (s *fakeServo) Disable(ctx context.Context) error {
	s.calls = append(s.calls, "disable")
	return s.err
}

func (s *fakeServo) SetVelocity(ctx context.Context, velocity int) error {
	s.calls = append(s.calls, fmt.Sprintf("velocity %d", velocity))
	return s.err
}

func TestServoMotor_OnOff(t *testing.T) {
	cal := MotorCalibration{ID: 1, MaxVelocity: 1000}

	tests := []struct {
		name    string
		running bool
		brake   bool
		want    []string
	}{
		{"brake when torque off", false, true, []string{"enable", "velocity 0"}},
		{"brake when running", true, true, []string{"velocity 0"}},
		{"coast when torque off", false, false, []string{"disable"}},
		{"coast when running", true, false, []string{"velocity 0", "disable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			servo := &fakeServo{}
			m := newServoMotor(servo, cal)
			ctx := context.Background()

			if tt.running {
				require.NoError(t, m.On(ctx, 20))
				assert.Equal(t, []string{"enable", "velocity 200"}, servo.calls)
				servo.calls = nil
			}

			require.NoError(t, m.Off(ctx, tt.brake))
			assert.Equal(t, tt.want, servo.calls)
			assert.Equal(t, tt.brake, m.enabled)
		})
	}
}

func TestServoMotor_EnablesOnce(t *testing.T) {
	servo := &fakeServo{}
	m := newServoMotor(servo, MotorCalibration{ID: 2, DriveMode: 1, MaxVelocity: 1000})
	ctx := context.Background()

	require.NoError(t, m.On(ctx, 20))
	require.NoError(t, m.On(ctx, -50))
	require.NoError(t, m.Off(ctx, true))
	require.NoError(t, m.On(ctx, 10))

	assert.Equal(t, []string{
		"enable", "velocity -200",
		"velocity 500",
		"velocity 0",
		"velocity -100",
	}, servo.calls)
}

func TestServoMotor_Errors(t *testing.T) {
	servo := &fakeServo{err: errors.New("no response")}
	m := newServoMotor(servo, MotorCalibration{ID: 3, MaxVelocity: 1000})
	ctx := context.Background()

	assert.ErrorContains(t, m.On(ctx, 20), "enable servo 3")
	assert.False(t, m.enabled)
	assert.ErrorContains(t, m.Off(ctx, false), "disable servo 3")
}
