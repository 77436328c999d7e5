package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/ir"
)

func TestRunWithGolden(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadScenario(t, "product_lifecycle.yaml")))
}

func TestSnapshot(t *testing.T) {
	changed := true
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Seq: 1, Op: OpSet, Path: "shop:10:product/name", Value: ir.IRString("lamp"), Result: ir.IRString("lamp"), Changed: &changed},
		TraceEvent{Seq: 2, Op: OpVisit, Path: "shop:*:product"},
		TraceEvent{Seq: 3, Op: OpChange, Path: "shop:10:product/tags", Error: "bad"},
	)
	result.State["lamp"] = ir.IRMap{"shop:product:name": ir.IRString("lamp")}

	data, err := Snapshot("demo", result)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"demo","state":{"lamp":{"shop:product:name":"lamp"}},"steps":[`+
		`{"changed":true,"op":"set","path":"shop:10:product/name","result":"lamp","seq":1,"value":"lamp"},`+
		`{"op":"visit","path":"shop:*:product","seq":2,"visited":0},`+
		`{"error":"bad","op":"change","path":"shop:10:product/tags","seq":3}]}`, string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	sc := loadScenario(t, "containers.yaml")

	var snapshots []string
	for range 2 {
		result, err := Run(t.Context(), sc)
		require.NoError(t, err)
		data, err := Snapshot(sc.Name, result)
		require.NoError(t, err)
		snapshots = append(snapshots, string(data))
	}
	assert.Equal(t, snapshots[0], snapshots[1])
}
