package bl0910_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/itohio/gobl0910/pkg/bl0910"
	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/transport"
)

func TestDeviceOverSPI(t *testing.T) {
	pb := &spitest.Playback{Playback: conntest.Playback{
		Ops: []conntest.IO{
			{W: []byte{bl0910.ReadCommand, 0x10}},
			{W: []byte{0, 0, 0, 0}, R: []byte{0xE8, 0x03, 0x00, 0x04}},
		},
		DontPanic: true,
	}}
	spi, err := transport.NewSPI(pb, 0)
	require.NoError(t, err)

	ref := config.Default().Reference
	ref.Current = 0.002
	d := bl0910.New(spi, ref)

	var got []float64
	d.Bind(bl0910.PerChannel(bl0910.Current, 5), bl0910.SinkFunc(func(v float64) {
		got = append(got, v)
	}))

	d.Reset()
	for d.State() != bl0910.Unit(6) {
		d.Tick()
	}

	require.Len(t, got, 1)
	assert.InDelta(t, 2.0, got[0], 1e-12)
	assert.NoError(t, pb.Close())
}

func TestDeviceOverSPI_ResetEnergy(t *testing.T) {
	unlock := bl0910.EncodePacket(bl0910.RegUsrWrProt, 0x005555)
	reset := bl0910.EncodePacket(bl0910.RegSoftReset, 0x5A5A5A)
	record := &spitest.Record{}

	spi, err := transport.NewSPI(record, 0)
	require.NoError(t, err)
	d := bl0910.New(spi, config.Default().Reference)

	d.ResetEnergy()
	d.Reset()
	d.Tick()

	// Residual discard on SPI clocks out bounded dummy reads, which a
	// port-less recorder rejects; only the writes are of interest here.
	require.GreaterOrEqual(t, len(record.Ops), 4)
	assert.Equal(t, []byte{bl0910.WriteCommand, bl0910.RegUsrWrProt}, record.Ops[0].W)
	assert.Equal(t, unlock.Bytes(), record.Ops[1].W)
	assert.Equal(t, []byte{bl0910.WriteCommand, bl0910.RegSoftReset}, record.Ops[2].W)
	assert.Equal(t, reset.Bytes(), record.Ops[3].W)
}
