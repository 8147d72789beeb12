// Package domain models gridded daily climate data and the county-level
// summaries derived from it.
//
// # Data Source
//
// Inputs are downscaled daily climate projections distributed as one NetCDF
// file per variable, scenario, and calendar year, e.g.
//
//	tasmax_day_NorESM2-LM_ssp245_r1i1p1f1_gn_2040_v1.1.nc
//
// Each file holds a (time, lat, lon) variable, a time coordinate expressed as
// "<unit> since <date>" under a CF calendar, and regularly spaced latitude and
// longitude centers. The grid is described here as an affine transform
// ([Grid]) so that cube cells and region rasters share one cell geometry.
//
// # Units
//
// Raw physical units are converted once at store build time ([NormalizeUnits]):
//
//	Temperature (tas, tasmax, tasmin): K  -> °C   (v - 273.15)
//	Precipitation (pr):                kg m-2 s-1 -> mm/day (v * 86400)
//
// Downstream code never sees raw units.
//
// # Calendars
//
// CF calendars differ in year length: standard/gregorian follow leap rules,
// noleap/365_day always has 365 days, all_leap/366_day 366, and 360_day 360.
// [Calendar.DaysInYear] is the expected daily count used by the gap check.
//
// # Statistics
//
// A region's value for a day is the mean of its valid member cells. Yearly
// statistics are computed over those daily values, and threshold counts are
// evaluated per day before summing over the year. Each variable has one
// [StatProfile] chosen at run start.
//
// A region-year without a single valid cell-day is emitted as a missing-data
// marker ([Record.Missing]), never as zeros.
package domain
