package database

// DeviceRow is one raw reading as stored in the source devices table
type DeviceRow struct {
	DeviceID    string  `db:"device_id"`
	Temperature float64 `db:"temperature"`
	Location    string  `db:"location"`
	Time        string  `db:"time"`
}

// AggregatedRow is one hourly aggregate as written to the sink
type AggregatedRow struct {
	DeviceID       string  `db:"device_id"`
	Hour           string  `db:"hour"`
	MaxTemperature float64 `db:"max_temperature"`
	DataPoints     int     `db:"data_points"`
	TotalDistance  float64 `db:"total_distance"`
}

// HourLayout is the naive wall-clock format of the hour column
const HourLayout = "2006-01-02 15:04:05"

const selectReadingsQuery = `SELECT device_id, temperature, location, time FROM devices`

const createAggregatedDataTable = `CREATE TABLE IF NOT EXISTS aggregated_data (
	device_id VARCHAR(255) NOT NULL,
	hour DATETIME NOT NULL,
	max_temperature DOUBLE,
	data_points INT,
	total_distance DOUBLE,
	PRIMARY KEY (device_id, hour)
)`
