package scenario

import (
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/litmuschaos/litmus-scenarios/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

func FuzzParse(f *testing.F) {
	f.Add([]byte(degradation))
	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Parse(data)
		if err != nil {
			return
		}
		require.NotEmpty(t, s.Name)
		require.NotEmpty(t, s.Phases)
		_, err = scheduler.Timeline(s)
		require.NoError(t, err)
	})
}

func FuzzParseGenerated(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		targetStruct := &struct {
			Name     string
			Phase    string
			Kind     string
			Target   string
			Key      string
			Value    string
		}{}
		err := fuzzConsumer.GenerateStruct(targetStruct)
		if err != nil {
			return
		}
		doc := scenarioDoc{
			Name: targetStruct.Name,
			Phases: []phaseDoc{{
				Name:     targetStruct.Phase,
				Duration: duration(time.Second),
				Injections: []injectionDoc{{
					Type:       targetStruct.Kind,
					Target:     targetStruct.Target,
					Parameters: map[string]string{targetStruct.Key: targetStruct.Value},
				}},
			}},
		}
		s := doc.model()
		if Validate(s) != nil {
			return
		}
		_, err = scheduler.Timeline(s)
		require.NoError(t, err)
	})
}
