package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnocal/internal/model"
)

func TestCSV_Extract(t *testing.T) {
	body := "Turni apr-25;;1;2\n;;;\nROSSI, Mario;;g14;OFF\nBIANCHI;;;d15\n"

	grid, err := CSV{}.Extract(context.Background(), Document{Name: "apr.csv", Body: []byte(body)})
	require.NoError(t, err)

	// blank row and the all-empty second column are dropped
	require.Len(t, grid, 3)
	assert.Equal(t, [][]string{
		{"Turni apr-25", "1", "2"},
		{"ROSSI, Mario", "g14", "OFF"},
		{"BIANCHI", "", "d15"},
	}, grid.Strings())
	assert.Nil(t, grid[2][1])
}

func TestCSV_Extract_EmptyColumnShiftsLaterDays(t *testing.T) {
	body := "Turni apr-25;1;;3\nROSSI;g14;;h16\n"

	grid, err := CSV{}.Extract(context.Background(), Document{Name: "apr.csv", Body: []byte(body)})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Turni apr-25", "1", "3"},
		{"ROSSI", "g14", "h16"},
	}, grid.Strings())
}

func TestJSON_Extract(t *testing.T) {
	body := `[["gen-24", null, 1], ["NERI", "h16", null], [null, null, null]]`

	grid, err := JSON{}.Extract(context.Background(), Document{Name: "x.json", Body: []byte(body)})
	require.NoError(t, err)
	require.Len(t, grid, 2)
	assert.Equal(t, "1", *grid[0][2])
	assert.Equal(t, "h16", *grid[1][1])
	assert.Nil(t, grid[1][2])
}

func TestJSON_Extract_NonTextName(t *testing.T) {
	body := `[["apr-25", 1, 2], [42, "g14", "OFF"], [true, "e12", null], ["ROSSI", "h16", 7]]`

	grid, err := JSON{}.Extract(context.Background(), Document{Name: "x.json", Body: []byte(body)})
	require.NoError(t, err)
	require.Len(t, grid, 4)
	assert.Nil(t, grid[1][0])
	assert.Equal(t, "g14", *grid[1][1])
	assert.Nil(t, grid[2][0])
	assert.Equal(t, "ROSSI", *grid[3][0])
	assert.Equal(t, "7", *grid[3][2])
}

func TestExtract_Empty(t *testing.T) {
	_, err := CSV{}.Extract(context.Background(), Document{Name: "e.csv", Body: []byte(" \n")})
	assert.ErrorIs(t, err, model.ErrEmptyExtraction)

	_, err = JSON{}.Extract(context.Background(), Document{Name: "e.json", Body: []byte(`[[null]]`)})
	assert.ErrorIs(t, err, model.ErrEmptyExtraction)
}

func TestForName(t *testing.T) {
	ex, err := ForName("Turni.CSV")
	require.NoError(t, err)
	assert.IsType(t, CSV{}, ex)

	_, err = ForName("scan.pdf")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, Supported("scan.pdf"))
}
